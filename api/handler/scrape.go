package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/scrapeworker/enginepipeline"
	"github.com/use-agent/scrapeworker/jobs"
	"github.com/use-agent/scrapeworker/models"
)

// PostScrape returns a handler for POST /v1/scrape. defaults carries the
// operator-level fallbacks from config.go's BrowserConfig, applied to
// any field the request itself left unset.
//
// Flow: decode (rejecting unknown fields) → defaults → validate →
// submit a job → either run it synchronously and answer inline, or
// (instantReturn=true) hand it to the background runner and answer 202.
func PostScrape(jm *jobs.Manager, defaults models.RequestDefaults) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := models.Decode(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ValidationErrorResponse{
				Error:   "invalid request body",
				Details: []models.FieldError{{Path: "body", Message: err.Error()}},
			})
			return
		}
		req.Defaults(defaults)

		if errs := req.Validate(); len(errs) > 0 {
			c.JSON(http.StatusBadRequest, models.ValidationErrorResponse{
				Error:   "validation failed",
				Details: errs,
			})
			return
		}

		job := jm.Submit(req)
		budget := time.Duration(enginepipeline.GetEngineMaxTime(req)) * time.Millisecond

		if req.InstantReturn {
			runCtx, cancel := context.WithTimeout(context.Background(), budget)
			jm.RunAsync(runCtx, job, cancel)
			c.JSON(http.StatusAccepted, jobs.StatusResponse{JobID: job.ID, Processing: true})
			return
		}

		runCtx, cancel := context.WithTimeout(c.Request.Context(), budget)
		defer cancel()
		result, errDetail := jm.ExecuteSync(runCtx, job)
		if errDetail != nil {
			c.JSON(http.StatusInternalServerError, errDetail)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// RedirectScrape returns a handler for POST /scrape: a 307 redirect to
// /v1/scrape, preserving the method and body.
func RedirectScrape() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Redirect(http.StatusTemporaryRedirect, "/v1/scrape")
	}
}

// GetScrapeStatus returns a handler for GET /v1/scrape/:jobId (and its
// /scrape/:jobId mirror).
func GetScrapeStatus(jm *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("jobId")

		status, result, errDetail, found := jm.Status(id)
		if !found {
			c.JSON(http.StatusNotFound, models.ErrorDetail{
				Error: "Job not found",
				Code:  models.CodeJobNotFound,
			})
			return
		}

		if status != nil {
			c.JSON(http.StatusAccepted, status)
			return
		}
		if errDetail != nil {
			c.JSON(http.StatusInternalServerError, errDetail)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// DeleteScrape returns a handler for DELETE /v1/scrape/:jobId (and its
// /scrape/:jobId mirror). Always 200; deletion is idempotent.
func DeleteScrape(jm *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jm.Delete(c.Param("jobId"))
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
