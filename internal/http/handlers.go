package http

import (
	"fmt"
	"net/http"
	"strings"

	"cassa/internal/core"
	"cassa/internal/ledger"
	"cassa/internal/log"
	"cassa/internal/services"
)

// mutation parses a write request and applies it to the service.
type mutation func(r *http.Request, p *RequestBodyParser) (services.Result, error)

// handleMutation wraps the parse, apply and respond steps shared by every
// write endpoint that records an entry. A recorded entry answers 201; a
// no-op answers 200.
func (s *Server) handleMutation(op string, fn mutation) http.HandlerFunc {
	return s.mutationHandler(op, true, fn)
}

// handleUpdate is handleMutation for writes that change existing state.
func (s *Server) handleUpdate(op string, fn mutation) http.HandlerFunc {
	return s.mutationHandler(op, false, fn)
}

func (s *Server) mutationHandler(op string, creates bool, fn mutation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := NewRequestBodyParser(w, r)
		if err := p.Parse(); err != nil {
			if status, _ := classify(err); status == http.StatusRequestEntityTooLarge {
				FromError(err).Write(w)
				return
			}
			BadRequestError("invalid request body").Write(w)
			return
		}

		res, err := fn(r, p)
		if err != nil {
			s.logFailure(r, op, err)
			FromError(err).Write(w)
			return
		}

		status := http.StatusOK
		if creates && res.Entry != nil {
			status = http.StatusCreated
		}
		NewJSONResponse().Status(status).Body(newResultView(res)).Write(w)
	}
}

func (s *Server) logFailure(r *http.Request, op string, err error) {
	status, _ := classify(err)
	logger := log.FromContext(r.Context())
	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", log.FieldOperation, op, log.FieldError, err)
		return
	}
	logger.InfoContext(r.Context(), "Request rejected", log.FieldOperation, op, log.FieldError, err)
}

func (s *Server) userAmount(apply func(*http.Request, core.UserID, core.Amount, ledger.Meta) (services.Result, error)) mutation {
	return func(r *http.Request, p *RequestBodyParser) (services.Result, error) {
		user, err := p.User("user")
		if err != nil {
			return services.Result{}, err
		}
		amount, err := p.Amount("amount")
		if err != nil {
			return services.Result{}, err
		}
		m, err := p.Meta()
		if err != nil {
			return services.Result{}, err
		}
		return apply(r, user, amount, m)
	}
}

func (s *Server) income() mutation {
	return s.userAmount(func(r *http.Request, u core.UserID, a core.Amount, m ledger.Meta) (services.Result, error) {
		return s.svc.Income(r.Context(), u, a, m)
	})
}

func (s *Server) gain() mutation {
	return s.userAmount(func(r *http.Request, u core.UserID, a core.Amount, m ledger.Meta) (services.Result, error) {
		return s.svc.Gain(r.Context(), u, a, m)
	})
}

func (s *Server) loss() mutation {
	return s.userAmount(func(r *http.Request, u core.UserID, a core.Amount, m ledger.Meta) (services.Result, error) {
		return s.svc.Loss(r.Context(), u, a, m)
	})
}

func (s *Server) expense(r *http.Request, p *RequestBodyParser) (services.Result, error) {
	user, err := p.User("user")
	if err != nil {
		return services.Result{}, err
	}
	var bd core.Breakdown
	for _, f := range []struct {
		key string
		dst *core.Amount
	}{
		{"food", &bd.Food},
		{"shopping", &bd.Shopping},
		{"fixed", &bd.Fixed},
		{"other", &bd.Other},
	} {
		if *f.dst, err = p.OptionalAmount(f.key); err != nil {
			return services.Result{}, err
		}
	}
	m, err := p.Meta()
	if err != nil {
		return services.Result{}, err
	}
	return s.svc.Expense(r.Context(), user, bd, m)
}

// parseDestination accepts "jointCash", "jointPrincipal" with a separate
// asset class, or the combined "jointPrincipal.<class>".
func parseDestination(to, class string) (ledger.Destination, error) {
	bucket, dotted, combined := strings.Cut(to, ".")
	if combined {
		class = dotted
	}
	d := ledger.Destination{Bucket: ledger.Bucket(bucket)}
	switch {
	case d.Bucket == ledger.BucketPrincipal,
		d.Bucket == ledger.BucketCash && combined:
		d.Class = core.AssetClass(class)
	}
	return d, d.Validate()
}

func (s *Server) transfer(r *http.Request, p *RequestBodyParser) (services.Result, error) {
	from, err := p.User("from")
	if err != nil {
		return services.Result{}, err
	}
	to, err := parseDestination(p.Get("to"), p.Get("assetClass"))
	if err != nil {
		return services.Result{}, err
	}
	amount, err := p.Amount("amount")
	if err != nil {
		return services.Result{}, err
	}
	m, err := p.Meta()
	if err != nil {
		return services.Result{}, err
	}
	return s.svc.Transfer(r.Context(), from, to, amount, m)
}

func (s *Server) jointSpend(r *http.Request, p *RequestBodyParser) (services.Result, error) {
	amount, err := p.Amount("amount")
	if err != nil {
		return services.Result{}, err
	}
	var by core.UserID
	if p.Get("advancedBy") != "" {
		if by, err = p.User("advancedBy"); err != nil {
			return services.Result{}, err
		}
	}
	m, err := p.Meta()
	if err != nil {
		return services.Result{}, err
	}
	return s.svc.JointSpend(r.Context(), amount, core.Category(p.Get("category")), by, m)
}

func (s *Server) invest(sell bool) mutation {
	return func(r *http.Request, p *RequestBodyParser) (services.Result, error) {
		class := core.AssetClass(p.Get("assetClass"))
		amount, err := p.Amount("amount")
		if err != nil {
			return services.Result{}, err
		}
		m, err := p.Meta()
		if err != nil {
			return services.Result{}, err
		}
		if sell {
			return s.svc.Sell(r.Context(), class, amount, m)
		}
		return s.svc.Buy(r.Context(), class, amount, m)
	}
}

func (s *Server) setRate(r *http.Request, p *RequestBodyParser) (services.Result, error) {
	class := core.AssetClass(r.PathValue("class"))
	raw := p.Get("returnRatePercent")
	if raw == "" {
		raw = p.Get("rate")
	}
	if raw == "" {
		return services.Result{}, fmt.Errorf("%w: missing rate", core.ErrInvalidRate)
	}
	rate, err := core.ParseRate(raw)
	if err != nil {
		return services.Result{}, err
	}
	return s.svc.SetReturnRate(r.Context(), class, rate)
}

func (s *Server) settle(r *http.Request, p *RequestBodyParser) (services.Result, error) {
	user, err := p.User("user")
	if err != nil {
		return services.Result{}, err
	}
	m, err := p.Meta()
	if err != nil {
		return services.Result{}, err
	}
	return s.svc.Settle(r.Context(), user, m)
}

func (s *Server) unsettle(r *http.Request, p *RequestBodyParser) (services.Result, error) {
	return s.svc.Unsettle(r.Context(), r.PathValue("id"), p.Operator())
}

func (s *Server) deleteEntry(r *http.Request, p *RequestBodyParser) (services.Result, error) {
	return s.svc.Delete(r.Context(), r.PathValue("id"), p.Operator())
}

func (s *Server) importSnapshot(r *http.Request, p *RequestBodyParser) (services.Result, error) {
	return s.svc.Import(r.Context(), p.GetRaw())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	withLog := r.URL.Query().Get("log") != "false"
	NewJSONResponse().Body(newStateView(s.svc, withLog)).Write(w)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := sanitizeInput(r.URL.Query().Get("q"))
	NewJSONResponse().Body(newHitsView(s.svc.Search(term))).Write(w)
}

func (s *Server) handleDebts(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(newDebtsView(s.svc.Debts())).Write(w)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.Export()
	if err != nil {
		s.logFailure(r, "export", err)
		FromError(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.json"`, s.svc.Household()))
	_, _ = w.Write(data)
}

type statusView struct {
	Persistence services.PersistStatus `json:"persistence"`
	Requests    any                    `json:"requests"`
	RateLimit   any                    `json:"rateLimit"`
	Security    any                    `json:"security"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(statusView{
		Persistence: s.svc.Status(),
		Requests:    s.tracer.GetMetrics(),
		RateLimit:   s.limiter.GetMetrics(),
		Security:    s.detector.GetMetrics(),
	}).Write(w)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports 503 while the store is refusing writes.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Status()
	if st.Dirty && st.LastError != "" {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
