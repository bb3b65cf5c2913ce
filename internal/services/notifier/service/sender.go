package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/smtp"
	"strings"
	"sync"
	"time"

	perr "chime/internal/platform/errors"
	"chime/internal/platform/logger"
	"chime/internal/services/alarms/domain"
)

// Sender delivers a single email request
type Sender interface {
	Send(ctx context.Context, req domain.EmailRequest) error
}

// SimConfig tunes the simulated sender
type SimConfig struct {
	MinDelay    time.Duration // default 10ms
	MaxDelay    time.Duration // default 50ms
	FailureRate float64       // zero disables failures; negative selects the 0.01 default
	Seed        uint64        // 0 means nondeterministic
}

func (c *SimConfig) defaults() {
	if c.MinDelay <= 0 {
		c.MinDelay = 10 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 50 * time.Millisecond
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	if c.FailureRate < 0 {
		c.FailureRate = 0.01
	}
}

// SimSender fakes delivery with a short delay and a small failure rate
type SimSender struct {
	cfg SimConfig
	log logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimSender builds a simulated sender
func NewSimSender(cfg SimConfig, log logger.Logger) *SimSender {
	cfg.defaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &SimSender{
		cfg: cfg,
		log: log,
		rng: rand.New(rand.NewPCG(seed, seed)),
	}
}

// Send implements Sender
func (s *SimSender) Send(ctx context.Context, req domain.EmailRequest) error {
	s.mu.Lock()
	span := s.cfg.MaxDelay - s.cfg.MinDelay
	delay := s.cfg.MinDelay
	if span > 0 {
		delay += time.Duration(s.rng.Int64N(int64(span) + 1))
	}
	fail := s.rng.Float64() < s.cfg.FailureRate
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
	}
	if fail {
		return perr.Unavailablef("simulated delivery failure to %s", req.ToEmail)
	}
	s.log.Debug().Str("to", req.ToEmail).Str("code_id", req.CodeID).Msg("simulated email sent")
	return nil
}

// SMTPConfig configures the real sender
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	PoolSize int // default 5, max concurrent connections
}

func (c *SMTPConfig) defaults() {
	if c.Port <= 0 {
		c.Port = 587
	}
	if c.PoolSize <= 0 || c.PoolSize > 5 {
		c.PoolSize = 5
	}
}

// SMTPSender delivers over a small pool of reused SMTP connections.
// A connection that fails mid-send is discarded, never returned to the pool
type SMTPSender struct {
	cfg  SMTPConfig
	log  logger.Logger
	idle chan *smtp.Client
	sem  chan struct{}

	// dial seam for tests
	dial func() (*smtp.Client, error)
}

// NewSMTPSender builds the pooled sender
func NewSMTPSender(cfg SMTPConfig, log logger.Logger) *SMTPSender {
	cfg.defaults()
	s := &SMTPSender{
		cfg:  cfg,
		log:  log,
		idle: make(chan *smtp.Client, cfg.PoolSize),
		sem:  make(chan struct{}, cfg.PoolSize),
	}
	s.dial = s.dialSMTP
	return s
}

func (s *SMTPSender) dialSMTP() (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	c, err := smtp.Dial(addr)
	if err != nil {
		return nil, perr.Unavailablef("smtp dial %s: %v", addr, err)
	}
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(nil); err != nil {
			_ = c.Close()
			return nil, perr.Unavailablef("smtp starttls: %v", err)
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := c.Auth(auth); err != nil {
			_ = c.Close()
			return nil, perr.Unavailablef("smtp auth: %v", err)
		}
	}
	return c, nil
}

// Send implements Sender
func (s *SMTPSender) Send(ctx context.Context, req domain.EmailRequest) error {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()

	var c *smtp.Client
	select {
	case c = <-s.idle:
	default:
		var err error
		c, err = s.dial()
		if err != nil {
			return err
		}
	}

	if err := s.deliver(c, req); err != nil {
		_ = c.Close()
		return err
	}

	select {
	case s.idle <- c:
	default:
		_ = c.Quit()
	}
	return nil
}

func (s *SMTPSender) deliver(c *smtp.Client, req domain.EmailRequest) error {
	if err := c.Mail(s.cfg.From); err != nil {
		return perr.Unavailablef("smtp mail from: %v", err)
	}
	if err := c.Rcpt(req.ToEmail); err != nil {
		return perr.Unavailablef("smtp rcpt: %v", err)
	}
	w, err := c.Data()
	if err != nil {
		return perr.Unavailablef("smtp data: %v", err)
	}
	if _, err := w.Write([]byte(buildMessage(s.cfg.From, req))); err != nil {
		_ = w.Close()
		return perr.Unavailablef("smtp write: %v", err)
	}
	if err := w.Close(); err != nil {
		return perr.Unavailablef("smtp close: %v", err)
	}
	return nil
}

// buildMessage renders a plain-text MIME message for the alarm notification
func buildMessage(from string, req domain.EmailRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", req.ToEmail)
	fmt.Fprintf(&b, "Subject: Alarm: %s\r\n", req.CodeID)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "%s\r\n\r\n", req.Description)
	fmt.Fprintf(&b, "Code ID: %s\r\n", req.CodeID)
	fmt.Fprintf(&b, "Alarm time: %s (%s)\r\n", req.AlarmTime, req.Timezone)
	return b.String()
}
