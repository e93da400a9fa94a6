package models

// JOB_NOT_FOUND is the only stable error code in the taxonomy (spec §7);
// everything else is carried as a plain message.
const CodeJobNotFound = "JOB_NOT_FOUND"
