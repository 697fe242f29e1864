package broadcast

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"wadispatch/internal/delivery"
	"wadispatch/internal/strategy"
	"wadispatch/internal/whatsapp"
	"wadispatch/pkg/logx"
	"wadispatch/pkg/phone"
)

const cancelledError = "broadcast cancelled"

// Settings are the live-reloadable knobs of a run. A run snapshots them when
// it starts.
type Settings struct {
	SendInterval     time.Duration
	FallbackTemplate string
	FallbackLanguage string
	DefaultLanguage  string
	Personalize      *regexp.Regexp
	PlaceholderName  string
	Phones           *phone.Normalizer
}

func DefaultSettings() Settings {
	return Settings{
		SendInterval:     DefaultSendInterval,
		FallbackTemplate: "hello_world",
		FallbackLanguage: strategy.DefaultLanguage,
		DefaultLanguage:  strategy.DefaultLanguage,
		Personalize:      strategy.DefaultPersonalizedPattern,
		PlaceholderName:  strategy.DefaultPlaceholderName,
		Phones:           phone.Default(),
	}
}

type Deps struct {
	Credentials whatsapp.CredentialsProvider
	Templates   strategy.TemplateSender
	Transport   strategy.MessagingTransport
	Agents      strategy.AgentRepository
	Generator   strategy.AIGenerator
	Deliveries  *delivery.Logger

	// Limiters overrides the interval limiter from Settings.
	Limiters LimiterFactory
	Log      logx.Logger
}

// ProgressFunc observes each recipient result as it is recorded.
type ProgressFunc func(index int, rr RecipientResult)

type Orchestrator struct {
	deps Deps
	log  logx.Logger

	mu  sync.RWMutex
	set Settings
}

func NewOrchestrator(d Deps, s Settings) *Orchestrator {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	o := &Orchestrator{deps: d, log: log}
	o.Apply(s)
	return o
}

// Apply replaces the settings for runs started afterwards.
func (o *Orchestrator) Apply(s Settings) {
	def := DefaultSettings()
	if strings.TrimSpace(s.FallbackTemplate) == "" {
		s.FallbackTemplate = def.FallbackTemplate
	}
	if strings.TrimSpace(s.FallbackLanguage) == "" {
		s.FallbackLanguage = def.FallbackLanguage
	}
	if strings.TrimSpace(s.DefaultLanguage) == "" {
		s.DefaultLanguage = def.DefaultLanguage
	}
	if strings.TrimSpace(s.PlaceholderName) == "" {
		s.PlaceholderName = def.PlaceholderName
	}
	if s.Phones == nil {
		s.Phones = def.Phones
	}
	o.mu.Lock()
	o.set = s
	o.mu.Unlock()
}

func (o *Orchestrator) settings() Settings {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.set
}

// NormalizePhone canonicalizes raw with the current phone settings.
func (o *Orchestrator) NormalizePhone(raw string) string {
	return o.settings().Phones.Normalize(raw)
}

// Run sends mt to every recipient in order and returns the aggregate. Only
// configuration problems and cancellation are returned as errors; everything
// per recipient lands in the result.
func (o *Orchestrator) Run(ctx context.Context, recipients []Recipient, mt strategy.MessageType, campaign string) (Result, error) {
	return o.RunWithProgress(ctx, recipients, mt, campaign, nil)
}

func (o *Orchestrator) RunWithProgress(ctx context.Context, recipients []Recipient, mt strategy.MessageType, campaign string, progress ProgressFunc) (Result, error) {
	res := Result{PerRecipient: make([]RecipientResult, 0, len(recipients))}

	campaign = strings.TrimSpace(campaign)
	if campaign == "" {
		return res, fmt.Errorf("%w: campaign name is required", ErrInvalidInput)
	}
	if err := strategy.Validate(mt); err != nil {
		return res, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if o.deps.Credentials == nil {
		return res, fmt.Errorf("%w: %w", ErrConfiguration, whatsapp.ErrMissingCredentials)
	}
	if _, err := o.deps.Credentials.Credentials(ctx); err != nil {
		return res, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if o.deps.Deliveries == nil {
		return res, fmt.Errorf("%w: delivery log missing", ErrConfiguration)
	}

	set := o.settings()
	sd := strategy.Deps{
		Templates:       o.deps.Templates,
		Transport:       o.deps.Transport,
		Agents:          o.deps.Agents,
		Generator:       o.deps.Generator,
		DefaultLanguage: set.DefaultLanguage,
		Personalize:     set.Personalize,
		PlaceholderName: set.PlaceholderName,
	}
	st, err := strategy.Build(mt, sd)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	var policy *strategy.WindowFallback
	if o.deps.Templates != nil {
		policy = strategy.NewWindowFallback(strategy.NewTemplate(sd, set.FallbackTemplate, set.FallbackLanguage))
	}

	lim := o.limiter(set)
	log := o.log.With(logx.String("campaign", campaign), logx.String("kind", string(mt.Kind())))
	start := time.Now()
	log.Info("broadcast started", logx.Int("total", len(recipients)))

	for i, r := range recipients {
		if err := ctx.Err(); err != nil {
			o.cancelRemaining(&res, recipients[i:], progress, i)
			log.Warn("broadcast cancelled", logx.Int("processed", i), logx.Int("total", len(recipients)))
			return res, err
		}
		if err := lim.Wait(ctx); err != nil {
			o.cancelRemaining(&res, recipients[i:], progress, i)
			log.Warn("broadcast cancelled", logx.Int("processed", i), logx.Int("total", len(recipients)), logx.Err(err))
			if cerr := ctx.Err(); cerr != nil {
				return res, cerr
			}
			return res, err
		}

		rr := o.dispatchOne(ctx, log, set.Phones, st, policy, r, campaign)
		if sc, ok := lim.(SendCompleter); ok {
			sc.Done(time.Now())
		}
		res.add(rr)
		if progress != nil {
			progress(i, rr)
		}
	}

	fields := []logx.Field{
		logx.Int("total", res.Total),
		logx.Int("successful", res.Successful),
		logx.Int("failed", res.Failed),
		logx.Duration("took", time.Since(start)),
	}
	if res.Failed > 0 {
		log.Warn("broadcast finished with failures", fields...)
	} else {
		log.Info("broadcast finished", fields...)
	}
	return res, nil
}

func (o *Orchestrator) limiter(set Settings) RateLimiter {
	if o.deps.Limiters != nil {
		if l := o.deps.Limiters(); l != nil {
			return l
		}
	}
	return NewIntervalLimiter(set.SendInterval)
}

func (o *Orchestrator) cancelRemaining(res *Result, rest []Recipient, progress ProgressFunc, offset int) {
	for j, r := range rest {
		rr := RecipientResult{Phone: strings.TrimSpace(r.Phone), Error: cancelledError}
		res.add(rr)
		if progress != nil {
			progress(offset+j, rr)
		}
	}
}

func (o *Orchestrator) dispatchOne(ctx context.Context, log logx.Logger, phones *phone.Normalizer, st strategy.Strategy, policy *strategy.WindowFallback, r Recipient, campaign string) RecipientResult {
	canonical := phones.Normalize(r.Phone)
	if err := phones.Check(canonical); err != nil {
		log.Debug("recipient skipped", logx.String("phone", r.Phone), logx.Err(err))
		phoneOut := canonical
		if phoneOut == "" {
			phoneOut = strings.TrimSpace(r.Phone)
		}
		return RecipientResult{Phone: phoneOut, Error: err.Error(), Kind: strategy.KindInvalidRecipient}
	}

	var attempts []strategy.Attempt
	if policy != nil {
		attempts = policy.Dispatch(ctx, st, canonical, r.Name)
	} else {
		attempts = []strategy.Attempt{st.Send(ctx, canonical, r.Name)}
	}
	for _, a := range attempts {
		o.record(ctx, log, campaign, r, canonical, a)
	}

	final := strategy.Final(attempts)
	if !final.Success {
		log.Debug("recipient failed",
			logx.String("phone", canonical),
			logx.String("error_kind", string(final.Kind)),
			logx.String("error", final.Error),
			logx.Int("attempts", len(attempts)),
		)
	}
	return RecipientResult{Phone: canonical, Success: final.Success, Error: final.Error, Kind: final.Kind}
}

func (o *Orchestrator) record(ctx context.Context, log logx.Logger, campaign string, r Recipient, canonical string, a strategy.Attempt) {
	status := delivery.StatusSent
	if !a.Outcome.Success {
		status = delivery.StatusFailed
	}
	e := delivery.Entry{
		CampaignName:    campaign,
		RecipientName:   strings.TrimSpace(r.Name),
		RecipientPhone:  canonical,
		MessageType:     string(a.Message),
		TemplateName:    a.Template,
		RenderedMessage: a.Rendered,
		Status:          status,
		MessageID:       a.Outcome.MessageID,
		Error:           a.Outcome.Error,
	}
	// Log writes use a detached context so a cancelled run still records
	// the attempts it made.
	if _, err := o.deps.Deliveries.Append(context.WithoutCancel(ctx), e); err != nil {
		log.Error("delivery log write failed", logx.String("phone", canonical), logx.Err(err))
	}
}

// IsClientError reports whether err came from a bad request rather than the
// service's own configuration.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, strategy.ErrInvalidMessage)
}
