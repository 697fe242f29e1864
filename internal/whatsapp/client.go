package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"wadispatch/internal/httpclient"
	"wadispatch/internal/strategy"
	"wadispatch/pkg/logx"
)

const (
	DefaultAPIBase    = "https://graph.facebook.com"
	DefaultAPIVersion = "v18.0"
)

type Config struct {
	APIBase    string
	APIVersion string
	Timeout    time.Duration
}

func (c Config) normalized() Config {
	c.APIBase = strings.TrimRight(strings.TrimSpace(c.APIBase), "/")
	if c.APIBase == "" {
		c.APIBase = DefaultAPIBase
	}
	c.APIVersion = strings.Trim(strings.TrimSpace(c.APIVersion), "/")
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	return c
}

// Client talks to the WhatsApp Cloud API messages endpoint. It implements
// strategy.MessagingTransport and strategy.TemplateSender.
type Client struct {
	creds CredentialsProvider
	log   logx.Logger

	mu   sync.RWMutex
	cfg  Config
	exec *httpclient.Executor
	hc   *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the underlying client (tests use httptest's).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func NewClient(cfg Config, creds CredentialsProvider, log logx.Logger, opts ...Option) *Client {
	c := &Client{creds: creds, log: log}
	for _, o := range opts {
		o(c)
	}
	c.Apply(cfg)
	return c
}

// Apply swaps endpoint settings; in-flight requests keep the old ones.
func (c *Client) Apply(cfg Config) {
	cfg = cfg.normalized()
	var eopts []httpclient.ExecutorOption
	if c.hc != nil {
		eopts = append(eopts, httpclient.WithClient(c.hc))
	}
	if cfg.Timeout > 0 {
		eopts = append(eopts, httpclient.WithTimeout(cfg.Timeout))
	}
	exec := httpclient.NewExecutor(eopts...)

	c.mu.Lock()
	c.cfg = cfg
	c.exec = exec
	c.mu.Unlock()
}

type textBody struct {
	Body string `json:"body"`
}

type language struct {
	Code string `json:"code"`
}

type parameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type component struct {
	Type       string      `json:"type"`
	Parameters []parameter `json:"parameters"`
}

type templateBody struct {
	Name       string      `json:"name"`
	Language   language    `json:"language"`
	Components []component `json:"components,omitempty"`
}

type outbound struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Template         *templateBody `json:"template,omitempty"`
}

func newOutbound(to, typ string) outbound {
	return outbound{MessagingProduct: "whatsapp", RecipientType: "individual", To: to, Type: typ}
}

func (c *Client) SendText(ctx context.Context, phone, body string) strategy.Outcome {
	msg := newOutbound(phone, "text")
	msg.Text = &textBody{Body: body}
	return c.post(ctx, msg)
}

func (c *Client) SendTemplate(ctx context.Context, phone, name, lang string, params []string) strategy.Outcome {
	msg := newOutbound(phone, "template")
	tpl := &templateBody{Name: name, Language: language{Code: lang}}
	if len(params) > 0 {
		ps := make([]parameter, 0, len(params))
		for _, p := range params {
			ps = append(ps, parameter{Type: "text", Text: p})
		}
		tpl.Components = []component{{Type: "body", Parameters: ps}}
	}
	msg.Template = tpl
	return c.post(ctx, msg)
}

func (c *Client) post(ctx context.Context, msg outbound) strategy.Outcome {
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return strategy.Failed(strategy.KindUpstream, err.Error())
	}

	c.mu.RLock()
	cfg, exec := c.cfg, c.exec
	c.mu.RUnlock()

	payload, err := json.Marshal(msg)
	if err != nil {
		return strategy.Failed(strategy.KindUpstream, fmt.Sprintf("encode message: %v", err))
	}
	url := fmt.Sprintf("%s/%s/%s/messages", cfg.APIBase, cfg.APIVersion, creds.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return strategy.Failed(strategy.KindUpstream, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := exec.Do(ctx, req)
	if err != nil {
		c.log.Warn("whatsapp request failed", logx.String("type", msg.Type), logx.Err(err))
		return strategy.Failed(strategy.KindUpstream, fmt.Sprintf("send %s: %v", msg.Type, err))
	}

	if kind := ClassifyUpstreamError(resp.Status, resp.Body); kind != strategy.KindNone {
		m := upstreamMessage(resp.Status, resp.Body)
		c.log.Debug("whatsapp rejected message",
			logx.String("type", msg.Type),
			logx.Int("status", resp.Status),
			logx.String("kind", string(kind)),
			logx.String("error", m),
		)
		return strategy.Failed(kind, m)
	}

	r, _ := decodeResponse(resp.Body)
	id := ""
	if len(r.Messages) > 0 {
		id = r.Messages[0].ID
	}
	c.log.Debug("whatsapp message accepted",
		logx.String("type", msg.Type),
		logx.String("message_id", id),
		logx.Duration("took", resp.Duration),
	)
	return strategy.Sent(id)
}
