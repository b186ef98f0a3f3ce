// Cleanup HTTP handler.
//
// This file exposes the sweeper trigger. The pass itself is stateless and
// idempotent, so the endpoint accepts both GET (cron-friendly) and POST and
// can be hit on any schedule without coordination.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CleanupResponse reports one sweep pass in the shape the mini app's ops
// tooling expects.
type CleanupResponse struct {
	Status   string `json:"status" example:"success"`
	Checked  int    `json:"checked"`
	Verified int    `json:"verified"`
	Restored int    `json:"restored"`
	Failed   int    `json:"failed"`
}

// Cleanup godoc
// @ID          cleanup
// @Summary     Finalize stale claims
// @Description Runs one sweeper pass: every link claimed longer than the grace period is verified against the balance oracle and either retired or returned to the pool.
// @Tags        Maintenance
// @Produce     json
//
// @Success     200  {object}  handlers.CleanupResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Sweep failed"
// @Router      /cleanup [post]
func (h *Handlers) Cleanup(c *gin.Context) {
	rep, err := h.sweepSvc.Sweep(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeSweepFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, CleanupResponse{
		Status:   "success",
		Checked:  rep.Checked,
		Verified: rep.Verified,
		Restored: rep.Restored,
		Failed:   rep.Failed,
	})
}
