package enginepipeline

// specStealthJS is the spec's bespoke shim bundle (§4.5), layered on top
// of go-rod/stealth's generic patch set via a second EvalOnNewDocument
// call. It is more targeted than the library default: it hides
// navigator.webdriver, strips known automation-driver window globals,
// stubs window.chrome, short-circuits the notifications permission
// query, and normalizes the fingerprinting surface (plugins, languages,
// platform, hardwareConcurrency, deviceMemory).
const specStealthJS = `
(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });

	for (const prop of ['$cdc_asdjflasutopfhvcZLmcfl_', '__webdriver_evaluate',
		'__selenium_evaluate', '__webdriver_script_function', '__webdriver_script_func',
		'__webdriver_script_fn', '__fxdriver_evaluate', '__driver_unwrapped',
		'__webdriver_unwrapped', '__driver_evaluate', '__selenium_unwrapped',
		'__fxdriver_unwrapped']) {
		try { delete window[prop]; } catch (e) {}
	}

	window.chrome = window.chrome || { runtime: {} };

	const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
	if (originalQuery) {
		window.navigator.permissions.query = (params) => (
			params && params.name === 'notifications'
				? Promise.resolve({ state: Notification.permission })
				: originalQuery(params)
		);
	}

	Object.defineProperty(navigator, 'plugins', {
		get: () => [1, 2, 3, 4, 5].map(() => ({ name: 'Chrome PDF Plugin' })),
	});
	Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
	Object.defineProperty(navigator, 'platform', { get: () => 'Win32' });
	Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => 8 });
	Object.defineProperty(navigator, 'deviceMemory', { get: () => 8 });
})();
`
