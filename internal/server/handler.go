package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nyotafm/smsgate/internal/cache"
	"github.com/nyotafm/smsgate/internal/domain"
	"github.com/nyotafm/smsgate/internal/gateway"
	"github.com/nyotafm/smsgate/internal/logging"
	"github.com/nyotafm/smsgate/internal/security"
	"github.com/nyotafm/smsgate/internal/sms"
	"github.com/nyotafm/smsgate/internal/store"
)

// Orchestrator is the slice of the sms service the HTTP surface needs.
type Orchestrator interface {
	Send(ctx context.Context, draft *domain.SMS, opts map[string]any) (*domain.SMS, []domain.Message, error)
	Queue(ctx context.Context, draft *domain.SMS, opts map[string]any) (*domain.SMS, error)
	Resend(ctx context.Context, criteria store.SMSFilter) ([]sms.SendResult, error)
	Requeue(ctx context.Context, criteria store.SMSFilter) ([]domain.SMS, error)
	Unsent(ctx context.Context, criteria store.SMSFilter) ([]domain.SMS, error)
	Sent(ctx context.Context, criteria store.SMSFilter) ([]domain.SMS, error)
	UpdateStatuses(ctx context.Context, records []domain.StatusRecord) ([]domain.Message, error)
}

type Handler struct {
	orchestrator      Orchestrator
	dedupe            cache.ReportDedupe
	callbackTokenHash string
}

func NewHandler(orchestrator Orchestrator, dedupe cache.ReportDedupe, callbackTokenHash string) *Handler {
	return &Handler{
		orchestrator:      orchestrator,
		dedupe:            dedupe,
		callbackTokenHash: callbackTokenHash,
	}
}

func (h *Handler) sendHandler(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	created, messages, err := h.orchestrator.Send(c.Request.Context(), req.draft(), req.Options)
	if err != nil {
		var verr *sms.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		// The sms row exists with the gateway error recorded when
		// only the transport leg failed, so surface both.
		var terr *sms.TransportError
		if errors.As(err, &terr) && created != nil {
			c.JSON(http.StatusBadGateway, gin.H{
				"error": err.Error(),
				"sms":   toSMSResponse(*created),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, sendResponse{
		SMS:      toSMSResponse(*created),
		Messages: toMessageResponses(messages),
	})
}

func (h *Handler) queueHandler(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	created, err := h.orchestrator.Queue(c.Request.Context(), req.draft(), req.Options)
	if err != nil {
		var verr *sms.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"sms": toSMSResponse(*created)})
}

func (h *Handler) resendHandler(c *gin.Context) {
	criteria, ok := bindFilter(c)
	if !ok {
		return
	}

	results, err := h.orchestrator.Resend(c.Request.Context(), criteria)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]gin.H, len(results))
	for i, res := range results {
		entry := gin.H{"sms": toSMSResponse(*res.SMS)}
		if res.Err != nil {
			entry["error"] = res.Err.Error()
		} else {
			entry["messages"] = toMessageResponses(res.Messages)
		}
		out[i] = entry
	}
	c.JSON(http.StatusOK, gin.H{"results": out, "total": len(out)})
}

func (h *Handler) requeueHandler(c *gin.Context) {
	criteria, ok := bindFilter(c)
	if !ok {
		return
	}

	requeued, err := h.orchestrator.Requeue(c.Request.Context(), criteria)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, toListResponse(requeued))
}

func (h *Handler) unsentHandler(c *gin.Context) {
	smses, err := h.orchestrator.Unsent(c.Request.Context(), store.SMSFilter{From: c.Query("from")})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toListResponse(smses))
}

func (h *Handler) sentHandler(c *gin.Context) {
	smses, err := h.orchestrator.Sent(c.Request.Context(), store.SMSFilter{From: c.Query("from")})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toListResponse(smses))
}

// deliveriesHandler receives the gateway's delivery reports. The gateway
// may redeliver the same report, so reports are deduplicated before they
// are applied to stored messages.
func (h *Handler) deliveriesHandler(c *gin.Context) {
	if !security.VerifyToken(c.Query("token"), h.callbackTokenHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid callback token"})
		return
	}

	var report gateway.RawResponse
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report: " + err.Error()})
		return
	}

	log := logging.FromContext(c.Request.Context())

	records := gateway.Normalize(&report)
	fresh := records[:0]
	for _, rec := range records {
		if h.dedupe != nil {
			first, err := h.dedupe.MarkSeen(c.Request.Context(), report.BulkID, rec.ID)
			if err != nil {
				// Apply the record anyway, a double update is
				// idempotent for terminal statuses.
				log.Warn("report dedupe unavailable",
					"bulk_id", report.BulkID, "message_id", rec.ID, "error", err)
			} else if !first {
				continue
			}
		}
		fresh = append(fresh, rec)
	}

	if len(fresh) == 0 {
		c.JSON(http.StatusOK, gin.H{"updated": 0})
		return
	}

	updated, err := h.orchestrator.UpdateStatuses(c.Request.Context(), fresh)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   err.Error(),
			"updated": len(updated),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": len(updated)})
}

func (h *Handler) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func bindFilter(c *gin.Context) (store.SMSFilter, bool) {
	var req filterRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return store.SMSFilter{}, false
		}
	}
	return store.SMSFilter{IDs: req.IDs, From: req.From}, true
}
