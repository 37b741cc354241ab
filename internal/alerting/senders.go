package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	goredis "github.com/redis/go-redis/v9"

	"github.com/anthropic/agentwatch/internal/config"
	"github.com/anthropic/agentwatch/internal/errs"
	"github.com/anthropic/agentwatch/internal/logger"
	"github.com/anthropic/agentwatch/internal/store"
)

// Channel types.
const (
	ChannelConsole = "console"
	ChannelWebhook = "webhook"
	ChannelSlack   = "slack"
	ChannelEmail   = "email"
	ChannelRedis   = "redis"
)

// DefaultRedisChannel is the pub/sub channel used when none is configured.
const DefaultRedisChannel = "agentwatch:alerts"

// Sender delivers one rendered alert.
type Sender interface {
	Send(ctx context.Context, subject, body string, eventData map[string]any) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, subject, body string, eventData map[string]any) error

func (f SenderFunc) Send(ctx context.Context, subject, body string, eventData map[string]any) error {
	return f(ctx, subject, body, eventData)
}

// Channel configuration shapes, decoded from the stored configuration map.
type webhookConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type slackConfig struct {
	WebhookURL string `mapstructure:"webhookUrl"`
	URL        string `mapstructure:"url"`
	Channel    string `mapstructure:"channel"`
	Username   string `mapstructure:"username"`
}

type emailConfig struct {
	To      []string `mapstructure:"to"`
	From    string   `mapstructure:"from"`
	Host    string   `mapstructure:"host"`
	Port    int      `mapstructure:"port"`
	Subject string   `mapstructure:"subjectPrefix"`
}

type redisConfig struct {
	Addr    string `mapstructure:"addr"`
	Channel string `mapstructure:"channel"`
}

func decodeConfig(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// Senders builds a Sender for each channel type. Redis clients are shared
// per address and closed by Close.
type Senders struct {
	log       *logger.Logger
	http      *http.Client
	smtp      config.SMTPConfig
	redisAddr string

	// sendMail is smtp.SendMail; tests replace it.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

	mu    sync.Mutex
	redis map[string]*goredis.Client

	// overrides maps a channel type to a fixed sender, for tests and for
	// embedding callers that deliver elsewhere.
	overrides map[string]Sender
}

// SendersOptions configures NewSenders.
type SendersOptions struct {
	Logger         *logger.Logger
	WebhookTimeout time.Duration
	SMTP           config.SMTPConfig
	RedisAddr      string
}

// NewSenders creates the sender factory.
func NewSenders(opts SendersOptions) *Senders {
	timeout := opts.WebhookTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Senders{
		log:       logger.OrNop(opts.Logger),
		http:      &http.Client{Timeout: timeout},
		smtp:      opts.SMTP,
		redisAddr: opts.RedisAddr,
		sendMail:  smtp.SendMail,
		redis:     make(map[string]*goredis.Client),
		overrides: make(map[string]Sender),
	}
}

// Override routes every channel of type typ to s.
func (f *Senders) Override(typ string, s Sender) {
	f.mu.Lock()
	f.overrides[typ] = s
	f.mu.Unlock()
}

// Validate checks that a channel's type is known and its configuration has
// what its sender needs.
func (f *Senders) Validate(ch store.Channel) error {
	_, err := f.build(ch, false)
	return err
}

// For returns the sender for ch.
func (f *Senders) For(ch store.Channel) (Sender, error) {
	return f.build(ch, true)
}

func (f *Senders) build(ch store.Channel, connect bool) (Sender, error) {
	f.mu.Lock()
	override, ok := f.overrides[ch.Type]
	f.mu.Unlock()

	switch ch.Type {
	case ChannelConsole:
		if ok {
			return override, nil
		}
		return &consoleSender{log: f.log.With("channel", ch.Name)}, nil

	case ChannelWebhook:
		var c webhookConfig
		if err := decodeConfig(ch.Configuration, &c); err != nil {
			return nil, errs.Validation("webhook channel %q: %v", ch.Name, err)
		}
		if c.URL == "" {
			return nil, errs.Validation("webhook channel %q requires configuration.url", ch.Name)
		}
		if ok {
			return override, nil
		}
		return &webhookSender{client: f.http, url: c.URL, headers: c.Headers}, nil

	case ChannelSlack:
		var c slackConfig
		if err := decodeConfig(ch.Configuration, &c); err != nil {
			return nil, errs.Validation("slack channel %q: %v", ch.Name, err)
		}
		if c.WebhookURL == "" {
			c.WebhookURL = c.URL
		}
		if c.WebhookURL == "" {
			return nil, errs.Validation("slack channel %q requires configuration.webhookUrl", ch.Name)
		}
		if ok {
			return override, nil
		}
		return &slackSender{client: f.http, cfg: c}, nil

	case ChannelEmail:
		var c emailConfig
		if err := decodeConfig(ch.Configuration, &c); err != nil {
			return nil, errs.Validation("email channel %q: %v", ch.Name, err)
		}
		if len(c.To) == 0 {
			return nil, errs.Validation("email channel %q requires configuration.to", ch.Name)
		}
		if ok {
			return override, nil
		}
		if c.Host == "" {
			c.Host = f.smtp.Host
		}
		if c.Port == 0 {
			c.Port = f.smtp.Port
		}
		if c.From == "" {
			c.From = f.smtp.From
		}
		if connect && (c.Host == "" || c.From == "") {
			return nil, fmt.Errorf("email channel %q: no SMTP host or sender address configured", ch.Name)
		}
		return &emailSender{cfg: c, smtp: f.smtp, sendMail: f.sendMail}, nil

	case ChannelRedis:
		var c redisConfig
		if err := decodeConfig(ch.Configuration, &c); err != nil {
			return nil, errs.Validation("redis channel %q: %v", ch.Name, err)
		}
		if c.Channel == "" {
			c.Channel = DefaultRedisChannel
		}
		if ok {
			return override, nil
		}
		if c.Addr == "" {
			c.Addr = f.redisAddr
		}
		if c.Addr == "" {
			return nil, errs.Validation("redis channel %q requires configuration.addr or alerting.redis_addr", ch.Name)
		}
		if !connect {
			return nil, nil
		}
		return &redisSender{rdb: f.redisClient(c.Addr), channel: c.Channel}, nil

	default:
		return nil, errs.InvalidState("unknown channel type %q (expected console, webhook, slack, email or redis)", ch.Type)
	}
}

func (f *Senders) redisClient(addr string) *goredis.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.redis[addr]; ok {
		return c
	}
	c := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	f.redis[addr] = c
	return c
}

// Close releases shared clients.
func (f *Senders) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var first error
	for addr, c := range f.redis {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(f.redis, addr)
	}
	return first
}

// ---------------------------------------------------------------------------
// Implementations
// ---------------------------------------------------------------------------

type consoleSender struct {
	log *logger.Logger
}

func (s *consoleSender) Send(_ context.Context, subject, body string, eventData map[string]any) error {
	s.log.Info("alert", "subject", subject, "body", body, "event", eventData["type"])
	return nil
}

type webhookSender struct {
	client  *http.Client
	url     string
	headers map[string]string
}

type webhookPayload struct {
	Subject string         `json:"subject"`
	Body    string         `json:"body"`
	Event   map[string]any `json:"event"`
	SentAt  time.Time      `json:"sentAt"`
}

func (s *webhookSender) Send(ctx context.Context, subject, body string, eventData map[string]any) error {
	payload, err := json.Marshal(webhookPayload{Subject: subject, Body: body, Event: eventData, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	return postJSON(ctx, s.client, s.url, payload, s.headers)
}

type slackSender struct {
	client *http.Client
	cfg    slackConfig
}

type slackPayload struct {
	Text     string `json:"text"`
	Channel  string `json:"channel,omitempty"`
	Username string `json:"username,omitempty"`
}

func (s *slackSender) Send(ctx context.Context, subject, body string, _ map[string]any) error {
	text := body
	if subject != "" {
		text = "*" + subject + "*\n" + body
	}
	payload, err := json.Marshal(slackPayload{Text: text, Channel: s.cfg.Channel, Username: s.cfg.Username})
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	return postJSON(ctx, s.client, s.cfg.WebhookURL, payload, nil)
}

func postJSON(ctx context.Context, client *http.Client, url string, payload []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post %s: status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type emailSender struct {
	cfg      emailConfig
	smtp     config.SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (s *emailSender) Send(_ context.Context, subject, body string, _ map[string]any) error {
	if s.cfg.Subject != "" {
		subject = s.cfg.Subject + " " + subject
	}
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(s.cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", stripControl(strings.ReplaceAll(subject, "\n", " ")))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	msg.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))

	var auth smtp.Auth
	if s.smtp.Username != "" {
		auth = smtp.PlainAuth("", s.smtp.Username, s.smtp.Password, s.cfg.Host)
	}
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)
	if err := s.sendMail(addr, auth, s.cfg.From, s.cfg.To, msg.Bytes()); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	return nil
}

type redisSender struct {
	rdb     *goredis.Client
	channel string
}

func (s *redisSender) Send(ctx context.Context, subject, body string, eventData map[string]any) error {
	raw, err := json.Marshal(webhookPayload{Subject: subject, Body: body, Event: eventData, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := s.rdb.Publish(ctx, s.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", s.channel, err)
	}
	return nil
}
