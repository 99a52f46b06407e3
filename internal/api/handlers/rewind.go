package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/riftline/rift-rewind/internal/rewind"
	"github.com/riftline/rift-rewind/internal/riot"
	"github.com/riftline/rift-rewind/pkg/config"
	"github.com/riftline/rift-rewind/pkg/utils"
)

type RewindHandler struct {
	aggregator *rewind.Aggregator
	cfg        *config.Config
	logger     *logrus.Logger
}

func NewRewindHandler(aggregator *rewind.Aggregator, cfg *config.Config, logger *logrus.Logger) *RewindHandler {
	return &RewindHandler{
		aggregator: aggregator,
		cfg:        cfg,
		logger:     logger,
	}
}

// GetRewind runs a season aggregation for one player. A full season of
// uncached history can take minutes; callers are expected to poll or hold
// the connection.
func (h *RewindHandler) GetRewind(c *gin.Context) {
	name := c.Query("name")
	tag := c.Query("tag")
	region := c.Query("region")

	if name == "" || tag == "" {
		utils.SendValidationError(c, "name and tag query parameters are required")
		return
	}

	windowStart, windowEnd := h.cfg.SeasonWindow()
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			utils.SendValidationError(c, "from must be RFC3339")
			return
		}
		windowStart = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			utils.SendValidationError(c, "to must be RFC3339")
			return
		}
		windowEnd = t
	}

	summary, err := h.aggregator.BuildRewind(c.Request.Context(), name, tag, region, windowStart, windowEnd)
	if err != nil {
		h.sendTaxonomyError(c, err)
		return
	}

	utils.SendSuccess(c, summary)
}

// sendTaxonomyError maps the riot error taxonomy onto HTTP responses so the
// chat frontend can distinguish user mistakes from operator problems.
func (h *RewindHandler) sendTaxonomyError(c *gin.Context, err error) {
	var validation *riot.ValidationError
	var notFound *riot.NotFoundError
	var auth *riot.AuthError
	var rateLimited *riot.RateLimitedError
	var timeout *riot.TimeoutError

	switch {
	case errors.As(err, &validation):
		utils.SendValidationError(c, validation.Error())
	case errors.As(err, &notFound):
		utils.SendNotFound(c, notFound.Error())
	case errors.As(err, &auth), errors.Is(err, riot.ErrNoKeysAvailable):
		h.logger.Errorf("Credential problem during rewind: %v", err)
		utils.SendError(c, http.StatusBadGateway, utils.ErrCodeAuth, "riot api credentials are misconfigured")
	case errors.As(err, &rateLimited):
		utils.SendError(c, http.StatusServiceUnavailable, utils.ErrCodeRateLimited, "riot api rate limit exhausted, try again shortly")
	case errors.As(err, &timeout):
		utils.SendError(c, http.StatusGatewayTimeout, utils.ErrCodeUpstream, "riot api is not responding, try again shortly")
	default:
		h.logger.Errorf("Rewind failed: %v", err)
		utils.SendError(c, http.StatusBadGateway, utils.ErrCodeUpstream, "unexpected riot api failure")
	}
}
