package main

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pdlbus/internal/broker"
	"pdlbus/internal/config"
	"pdlbus/internal/logger"
	"pdlbus/internal/notification"
	"pdlbus/internal/product"
	"pdlbus/internal/sender"
	"pdlbus/internal/signature"
	"pdlbus/internal/storage"
	"pdlbus/pkg/metrics"
	"pdlbus/pkg/retry"
)

// productFlags describes a product on the command line. File, when set,
// names a product JSON document and the other fields are ignored.
type productFlags struct {
	File        string
	Source      string
	Type        string
	Code        string
	UpdateTime  string
	Status      string
	Properties  []string
	Links       []string
	Content     string
	ContentType string
}

func (f productFlags) build() (*product.Product, error) {
	if f.File != "" {
		return readProduct(f.File)
	}

	updateTime := time.Now()
	if f.UpdateTime != "" {
		t, err := product.ParseTime(f.UpdateTime)
		if err != nil {
			return nil, fmt.Errorf("invalid --update-time: %w", err)
		}
		updateTime = t
	}

	id := product.NewID(f.Source, f.Type, f.Code, updateTime)
	if err := id.Validate(); err != nil {
		return nil, err
	}

	status := f.Status
	if status == "" {
		status = product.StatusUpdate
	}
	p := product.NewWithStatus(id, strings.ToUpper(status))

	for _, kv := range f.Properties {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --property %q, expected name=value", kv)
		}
		p.Properties[k] = v
	}

	for _, kv := range f.Links {
		rel, raw, ok := strings.Cut(kv, "=")
		if !ok || rel == "" {
			return nil, fmt.Errorf("invalid --link %q, expected relation=url", kv)
		}
		href, err := url.Parse(raw)
		if err != nil || !href.IsAbs() {
			return nil, fmt.Errorf("invalid --link url %q", raw)
		}
		p.AddLink(rel, href)
	}

	switch f.Content {
	case "":
	case "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read content from stdin: %w", err)
		}
		p.SetContent(product.StdinPath, product.NewBytesContent(f.ContentType, time.Now(), data))
	default:
		p.SetContent(filepath.Base(f.Content), product.NewFileContent(f.Content, f.ContentType))
	}

	return p, nil
}

func readProduct(path string) (*product.Product, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read product: %w", err)
	}

	var p product.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode product: %w", err)
	}
	return &p, nil
}

func writeProduct(w io.Writer, p *product.Product) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

type Client struct {
	logger logger.Logger
	engine *signature.Engine
	out    io.Writer
}

func NewClient(log logger.Logger, out io.Writer) *Client {
	return &Client{
		logger: log,
		engine: signature.NewEngine(log.Named("signature")),
		out:    out,
	}
}

// Sign signs p in place with the private key stored at keyFile.
func (c *Client) Sign(p *product.Product, keyFile string) error {
	key, err := signature.LoadPrivateKey(keyFile)
	if err != nil {
		return err
	}
	return c.engine.SignProduct(key, p)
}

// Verify checks p against keys and reports which key matched.
func (c *Client) Verify(p *product.Product, keys signature.KeySource) (crypto.PublicKey, error) {
	key, err := c.engine.VerifyProduct(p, keys)
	if err != nil {
		c.logger.Warnw("Signature verification failed", "product_id", p.ID.String(), "error", err)
		return nil, err
	}
	return key, nil
}

type SendOptions struct {
	StorageDir string
	KeyFile    string
}

// Send optionally signs and stores p, then announces it on the configured
// subject. Transport failures are retried with the broker retry policy.
func (c *Client) Send(ctx context.Context, cfg *config.Config, p *product.Product, opts SendOptions) (*notification.Envelope, error) {
	if opts.KeyFile != "" {
		if err := c.Sign(p, opts.KeyFile); err != nil {
			return nil, err
		}
	}

	if opts.StorageDir != "" {
		path, err := storage.NewDirectoryStore(opts.StorageDir).Store(p)
		if err != nil {
			return nil, err
		}
		c.logger.Infow("Product stored", "product_id", p.ID.String(), "path", path)
	}

	resolver, err := storage.NewTemplateResolver(cfg.Storage.URLTemplate)
	if err != nil {
		return nil, err
	}

	s := sender.New(func(o sender.Options) (broker.Transport, error) {
		return broker.NewTransport(cfg.Broker, o.NotificationConfig(), c.logger)
	}, resolver, c.logger.Named("sender"))
	if err := s.Configure(sender.OptionsFromConfig(cfg.Notification)); err != nil {
		return nil, err
	}
	defer s.Close()

	policy := retry.FromConfig(cfg.Broker.Kafka.Retry)
	onRetry := func(operation string) func(int, error, time.Duration) {
		return func(attempt int, err error, next time.Duration) {
			metrics.IncRetryAttempt("product-client", operation)
			c.logger.Warnw("Retrying", "operation", operation, "attempt", attempt, "next_delay", next, "error", err)
		}
	}

	if err := retry.RetryWithCallback(ctx, policy, func() error {
		return s.Connect(ctx)
	}, onRetry("connect")); err != nil {
		return nil, err
	}

	var env *notification.Envelope
	err = retry.RetryWithCallback(ctx, policy, func() error {
		var sendErr error
		env, sendErr = s.SendProduct(ctx, p)
		return sendErr
	}, onRetry("publish"))
	if err != nil {
		return nil, err
	}

	data, err := notification.Encode(env)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(c.out, string(data))
	return env, nil
}

// Keygen writes a private key to path and its public key to path.pub.
func (c *Client) Keygen(keyType, path string) error {
	priv, err := signature.GenerateKeyPair(keyType)
	if err != nil {
		return err
	}

	privData, err := signature.MarshalPrivateKey(priv, "pdlbus product signing key")
	if err != nil {
		return err
	}
	pub, err := signature.MarshalPublicKey(priv.Public())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, privData, 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(path+".pub", []byte(pub+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}

	fmt.Fprintln(c.out, pub)
	return nil
}

// keySource builds the trusted keys from public key files, falling back to
// the signature section of cfg.
func keySource(files []string, cfg *config.Config) (signature.KeySource, error) {
	if len(files) == 0 {
		if cfg == nil {
			return nil, fmt.Errorf("no public keys: use --public-key or --config")
		}
		return signature.KeySourceFromConfig(cfg.Signature)
	}

	keys := make([]signature.ProductKey, 0, len(files))
	for _, f := range files {
		key, err := signature.LoadPublicKey(f)
		if err != nil {
			return nil, err
		}
		keys = append(keys, signature.ProductKey{Name: f, Key: key})
	}
	return signature.NewConfigKeySource(keys...), nil
}
