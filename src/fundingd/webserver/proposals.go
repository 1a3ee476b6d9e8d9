package webserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/communityfund/funding/src/fundingd/ledger"
	"github.com/communityfund/funding/src/fundingd/proposals"
	"github.com/communityfund/funding/src/fundingd/types"
)

func (h handlers) list(c *gin.Context) {
	var status *types.ProposalStatus
	var cat *types.ProposalCategory

	if v := c.Query("status"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil || !types.ProposalStatus(n).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"err": "invalid status"})
			return
		}
		st := types.ProposalStatus(n)
		status = &st
	}
	if v := c.Query("category"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil || !types.ProposalCategory(n).Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"err": "invalid category"})
			return
		}
		ct := types.ProposalCategory(n)
		cat = &ct
	}

	ps, err := h.svc.List(status, cat)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(ps))
	for i := range ps {
		out = append(out, proposalSummary(&ps[i]))
	}
	c.JSON(http.StatusOK, gin.H{"proposals": out})
}

func (h handlers) view(c *gin.Context) {
	slug := c.Param("slug")

	p, met, err := h.svc.ViewBySlug(c.Request.Context(), ledger.RequestCache{}, slug)
	if err != nil {
		writeError(c, err)
		return
	}

	if h.cfg.ViewCounter {
		h.svc.IncrementViews(p)
	}

	events := make([]gin.H, 0, len(p.Events))
	for _, ev := range p.Events {
		events = append(events, gin.H{
			"message": ev.Message,
			"created": ev.Created,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"proposal": proposalSummary(p),
		"metrics":  met,
		"events":   events,
	})
}

func (h handlers) upsert(c *gin.Context) {
	var req struct {
		Title            string  `json:"title" binding:"required,min=8,max=64"`
		Slug             string  `json:"slug"`
		Markdown         string  `json:"markdown" binding:"required,min=20"`
		FundsTarget      float64 `json:"funds_target" binding:"required,gt=0"`
		Category         uint8   `json:"category"`
		Status           *uint8  `json:"status"`
		DiscourseTopicID *int    `json:"discourse_topic_id"`
		AddrReceiving    string  `json:"addr_receiving" binding:"required,min=8,max=128"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	in := proposals.UpsertInput{
		Title:            req.Title,
		Slug:             req.Slug,
		Markdown:         req.Markdown,
		FundsTarget:      req.FundsTarget,
		Category:         types.ProposalCategory(req.Category),
		DiscourseTopicID: req.DiscourseTopicID,
		AddrReceiving:    req.AddrReceiving,
	}
	if req.Status != nil {
		st := types.ProposalStatus(*req.Status)
		in.Status = &st
	}

	p, err := h.svc.Upsert(c.Request.Context(), in, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slug": p.Slug, "uuid": p.UUID})
}

func (h handlers) transfer(c *gin.Context) {
	var req struct {
		Amount      string `json:"amount" binding:"required"`
		Destination string `json:"destination" binding:"required,min=4,max=256"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(req.Amount), 64)
	if err != nil || amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "amount not valid"})
		return
	}

	w, err := h.svc.AuthorizeTransfer(
		c.Request.Context(),
		ledger.RequestCache{},
		c.Param("slug"),
		proposals.TransferInput{Amount: amount, Destination: strings.TrimSpace(req.Destination)},
		currentUser(c),
	)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"uuid":   w.UUID,
		"txid":   w.TxID,
		"amount": w.Amount,
		"status": w.Status.String(),
	})
}

func proposalSummary(p *types.Proposal) gin.H {
	return gin.H{
		"uuid":               p.UUID,
		"title":              p.Title,
		"slug":               p.Slug,
		"author":             p.User.Username,
		"category":           p.Category.String(),
		"status":             p.Status.String(),
		"funds_target":       p.FundsTarget,
		"funds_progress":     p.FundsProgress,
		"addr_donation":      p.AddrDonation,
		"donations_enabled":  p.DonationsEnabled(),
		"discourse_topic_id": p.DiscourseTopicID,
		"views":              p.Views,
		"html":               p.HTML,
		"created":            p.Created,
		"modified":           p.Modified,
	}
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, proposals.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"err": "proposal not found"})
	case errors.Is(err, proposals.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"err": "insufficient permissions"})
	case errors.Is(err, proposals.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
	case errors.Is(err, proposals.ErrInsufficientFunds):
		c.JSON(http.StatusConflict, gin.H{"err": err.Error()})
	case errors.Is(err, proposals.ErrProvider):
		c.JSON(http.StatusBadGateway, gin.H{"err": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
	}
}
