package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"cagnotte/internal/amqp"
	"cagnotte/internal/core"
	"cagnotte/internal/log"
	"cagnotte/internal/session"
	"cagnotte/internal/sheets"
	"cagnotte/internal/sheets/xlsx"
)

const (
	defaultBudget = "5000"
	exportName    = "contributions.xlsx"

	msgSessionExpired  = "Session expirée, veuillez recharger la page."
	msgInternal        = "Une erreur interne est survenue."
	msgRemoteDisabled  = "L'export Google Sheets n'est pas configuré."
	msgRemoteFailed    = "L'export Google Sheets a échoué, veuillez réessayer."
	msgRemoteQueued    = "Export Google Sheets en cours"
	msgContributionAdd = "Contribution ajoutée"
)

// appMetrics holds counters exposed on /metrics.
type appMetrics struct {
	uptime               time.Time
	budgetsConfigured    int64
	contributionsAdded   int64
	contributionsDeleted int64
	exports              int64
	validationErrors     int64
}

type contributionView struct {
	ID        string
	Surname   string
	GivenName string
	Phone     string
	Amount    string
}

// pageView is the data rendered by the "app" template.
type pageView struct {
	Configuring   bool
	DefaultBudget string
	Initial       string
	Remaining     string
	Contributions []contributionView
	RemoteExport  bool
	Form          core.ContributionForm
}

func (s *Server) view(l *core.Ledger) pageView {
	v := pageView{
		Configuring:   l.Phase() == core.PhaseConfiguring,
		DefaultBudget: defaultBudget,
		Initial:       formatEuros(l.InitialBudget()),
		Remaining:     formatEuros(l.Remaining()),
		RemoteExport:  s.publisher != nil,
	}
	for _, c := range l.Contributions() {
		v.Contributions = append(v.Contributions, contributionView{
			ID:        c.ID,
			Surname:   c.Surname,
			GivenName: c.GivenName,
			Phone:     c.Phone,
			Amount:    formatEuros(c.Amount),
		})
	}
	return v
}

// handleIndex always starts a fresh ledger; reloading the page discards the previous one.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if old, ok := session.FromRequest(r); ok {
		if err := s.sessions.End(ctx, old); err != nil {
			s.events.LogError(ctx, "Failed to end previous session", err, log.ComponentSession, log.OpView,
				log.NewFields().WithSession(old))
		}
	}

	id, err := s.sessions.Start(ctx)
	if err != nil {
		s.events.LogError(ctx, "Failed to start session", err, log.ComponentSession, log.OpView, nil)
		InternalServerError(msgInternal).Write(w)
		return
	}

	var v pageView
	err = s.sessions.View(ctx, id, func(l *core.Ledger) error {
		v = s.view(l)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err, log.OpView, id)
		return
	}

	session.SetCookie(w, r, id, s.cookieMaxAge)
	s.render(w, r, NewHTMXResponse(), "index.html", v)
}

func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	id, ok := session.FromRequest(r)
	if !ok {
		s.writeError(w, r, session.ErrNotFound, log.OpConfigure, "")
		return
	}
	p, resp := parseOrFail(r)
	if resp != nil {
		resp.Write(w)
		return
	}

	budget, err := core.ParseBudget(p.Get(fieldBudget))
	if err != nil {
		s.writeError(w, r, err, log.OpConfigure, id)
		return
	}

	var v pageView
	err = s.sessions.Do(r.Context(), id, func(l *core.Ledger) error {
		if err := l.Configure(budget); err != nil {
			return err
		}
		v = s.view(l)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err, log.OpConfigure, id)
		return
	}

	atomic.AddInt64(&s.appMetrics.budgetsConfigured, 1)
	s.events.LogBudgetConfigured(r.Context(), id, budget.Cents)
	s.render(w, r, NewHTMXResponse().TriggerLedgerChanged(v.Remaining, 0), "app", v)
}

func (s *Server) handleAddContribution(w http.ResponseWriter, r *http.Request) {
	id, ok := session.FromRequest(r)
	if !ok {
		s.writeError(w, r, session.ErrNotFound, log.OpAdd, "")
		return
	}
	p, resp := parseOrFail(r)
	if resp != nil {
		resp.Write(w)
		return
	}
	form := p.ContributionForm()

	var (
		v         pageView
		added     core.Contribution
		remaining core.Money
	)
	err := s.sessions.Do(r.Context(), id, func(l *core.Ledger) error {
		c, err := l.Add(form)
		if err != nil {
			return err
		}
		added = c
		remaining = l.Remaining()
		v = s.view(l)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err, log.OpAdd, id)
		return
	}

	form.Reset()
	v.Form = form

	atomic.AddInt64(&s.appMetrics.contributionsAdded, 1)
	s.events.LogContributionAdded(r.Context(), id, added.ID, added.Amount.Cents, remaining.Cents)

	b := NewHTMXResponse().
		TriggerFormReset().
		TriggerLedgerChanged(v.Remaining, len(v.Contributions)).
		TriggerSuccessNotification(msgContributionAdd)
	s.render(w, r, b, "app", v)
}

// handleDeleteContribution removes an entry once the client confirmed it.
// Declined confirmations and unknown ids re-render the unchanged ledger.
func (s *Server) handleDeleteContribution(w http.ResponseWriter, r *http.Request) {
	id, ok := session.FromRequest(r)
	if !ok {
		s.writeError(w, r, session.ErrNotFound, log.OpDelete, "")
		return
	}
	p, resp := parseOrFail(r)
	if resp != nil {
		resp.Write(w)
		return
	}
	contributionID := r.PathValue("id")

	var (
		v       pageView
		removed bool
		left    core.Money
	)
	err := s.sessions.Do(r.Context(), id, func(l *core.Ledger) error {
		removed = l.Delete(contributionID, p.Confirmer())
		left = l.Remaining()
		v = s.view(l)
		return nil
	})
	if err != nil {
		s.writeError(w, r, err, log.OpDelete, id)
		return
	}

	b := NewHTMXResponse()
	if removed {
		atomic.AddInt64(&s.appMetrics.contributionsDeleted, 1)
		s.events.LogContributionDeleted(r.Context(), id, contributionID, left.Cents)
		b.TriggerLedgerChanged(v.Remaining, len(v.Contributions))
	}
	s.render(w, r, b, "app", v)
}

// handlePhoneInput answers a keystroke with the grouped phone number. Input
// that is not a complete number comes back exactly as typed.
func (s *Server) handlePhoneInput(w http.ResponseWriter, r *http.Request) {
	p, resp := parseOrFail(r)
	if resp != nil {
		resp.Write(w)
		return
	}
	raw := p.GetRaw(fieldPhone)
	NewHTMXResponse().TriggerPhoneFormatted(raw, core.FormatPhone(raw)).Write(w)
}

// exportSheet snapshots the session's contributions as a sheet.
func (s *Server) exportSheet(ctx context.Context, id string) (sheets.Sheet, error) {
	var sheet sheets.Sheet
	err := s.sessions.View(ctx, id, func(l *core.Ledger) error {
		if l.Phase() != core.PhaseCollecting {
			return core.ErrNotConfigured
		}
		sheet = sheets.ContributionsSheet(l.Contributions())
		return nil
	})
	return sheet, err
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	id, ok := session.FromRequest(r)
	if !ok {
		s.writeError(w, r, session.ErrNotFound, log.OpExport, "")
		return
	}
	sheet, err := s.exportSheet(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, log.OpExport, id)
		return
	}

	var buf bytes.Buffer
	if err := xlsx.Encode(&buf, sheet); err != nil {
		s.events.LogError(r.Context(), "Failed to encode workbook", err, log.ComponentExport, log.OpExport,
			log.NewFields().WithSession(id))
		InternalServerError(msgInternal).Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.exports, 1)
	s.events.LogExport(r.Context(), id, exportName, len(sheet.Rows))

	NewHTMXResponse().
		Header("Content-Type", xlsx.ContentType).
		Header("Content-Disposition", `attachment; filename="`+exportName+`"`).
		Body(buf.Bytes()).
		Write(w)
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		ServiceUnavailableError(msgRemoteDisabled).Write(w)
		return
	}
	id, ok := session.FromRequest(r)
	if !ok {
		s.writeError(w, r, session.ErrNotFound, log.OpPublish, "")
		return
	}
	sheet, err := s.exportSheet(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, log.OpPublish, id)
		return
	}

	job := amqp.NewExportJob(sheet)
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := s.publisher.PublishExportJob(ctx, job); err != nil {
		s.events.LogError(r.Context(), "Failed to publish export job", err, log.ComponentAMQP, log.OpPublish,
			log.NewFields().WithSession(id))
		BadGatewayError(msgRemoteFailed).Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.exports, 1)
	s.events.LogExport(r.Context(), id, "amqp:"+job.ID, len(sheet.Rows))
	NewHTMXResponse().
		Status(http.StatusAccepted).
		TriggerSuccessNotification(msgRemoteQueued).
		Write(w)
}

// writeError maps ledger and session errors onto responses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, op, sessionID string) {
	if msg, ok := core.UserMessage(err); ok {
		atomic.AddInt64(&s.appMetrics.validationErrors, 1)
		UnprocessableEntityError(msg).Write(w)
		return
	}
	if errors.Is(err, session.ErrNotFound) {
		ConflictError(msgSessionExpired).Write(w)
		return
	}
	s.events.LogError(r.Context(), "Ledger operation failed", err, log.ComponentLedger, op,
		log.NewFields().WithSession(sessionID))
	InternalServerError(msgInternal).Write(w)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data interface{}) {
	if err := b.BodyTemplate(s.templates, name, data); err != nil {
		s.events.LogError(r.Context(), "Failed to render template", err, log.ComponentTemplate, log.OpRender,
			log.NewFields())
		InternalServerError(msgInternal).Write(w)
		return
	}
	b.Write(w)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	})
}

// handleReady verifies the session backend.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"templates": "ok", "session_store": "ok"}
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["session_store"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		}
	}
	if s.publisher == nil {
		checks["remote_export"] = "disabled"
	} else {
		checks["remote_export"] = "enabled"
	}

	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	tm := s.tracer.GetMetrics()
	rl := s.limiter.GetMetrics()
	dm := s.detector.GetMetrics()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int64(time.Since(s.appMetrics.uptime).Seconds()),
		"requests": map[string]interface{}{
			"total":           tm.TotalRequests,
			"server_errors":   tm.ServerErrors,
			"avg_response_ms": tm.AverageResponseTime().Milliseconds(),
		},
		"ledger": map[string]int64{
			"budgets_configured":    atomic.LoadInt64(&s.appMetrics.budgetsConfigured),
			"contributions_added":   atomic.LoadInt64(&s.appMetrics.contributionsAdded),
			"contributions_deleted": atomic.LoadInt64(&s.appMetrics.contributionsDeleted),
			"exports":               atomic.LoadInt64(&s.appMetrics.exports),
			"validation_errors":     atomic.LoadInt64(&s.appMetrics.validationErrors),
		},
		"rate_limit": map[string]int64{
			"hits":    rl.TotalHits,
			"clients": rl.ClientCount,
		},
		"security": map[string]int64{
			"suspicious_requests": dm.SuspiciousRequests,
			"invalid_ip_attempts": dm.InvalidIPAttempts,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
