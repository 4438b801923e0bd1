package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/techshop-api/internal/apiclient"
	"github.com/noah-isme/techshop-api/internal/cart"
	"github.com/noah-isme/techshop-api/internal/checkout"
	"github.com/noah-isme/techshop-api/internal/config"
	"github.com/noah-isme/techshop-api/internal/obs"
	"github.com/noah-isme/techshop-api/internal/order"
	"github.com/noah-isme/techshop-api/internal/payment"
	"github.com/noah-isme/techshop-api/internal/pricing"
	"github.com/noah-isme/techshop-api/internal/resilience"
)

const sessionKey = "session"

// session is the signed-in account, saved next to the cart.
type session struct {
	UserID  string `json:"userId"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
	Token   string `json:"token"`
}

func (s session) viewer() order.Viewer {
	return order.Viewer{UserID: s.UserID, Admin: s.IsAdmin}
}

// cli holds what every command needs. It is populated before a command runs.
type cli struct {
	in  *bufio.Reader
	out io.Writer

	linesOnce sync.Once
	lines     chan string

	cfg     *config.ClientConfig
	log     zerolog.Logger
	storage cart.FileStorage
	api     *apiclient.Client
	cart    *cart.Store
	flow    *checkout.Flow
	session session
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{in: bufio.NewReader(stdin), out: stdout}
	root := &cobra.Command{
		Use:           "shopctl",
		Short:         "Shop the TechShop catalog from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(
		c.loginCmd(),
		c.registerCmd(),
		c.logoutCmd(),
		c.productsCmd(),
		c.cartCmd(),
		c.checkoutCmd(),
		c.ordersCmd(),
	)
	return root
}

func (c *cli) setup(stderr io.Writer) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.log = obs.NewLoggerTo(stderr, "console", cfg.LogLevel)

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	c.storage = cart.FileStorage{Dir: cfg.StateDir}

	calc, err := pricing.New(cfg.Pricing.FreeShippingThreshold, cfg.Pricing.ShippingFee, cfg.Pricing.TaxRate)
	if err != nil {
		return err
	}
	c.cart, err = cart.Open(calc, c.storage, c.log)
	if err != nil {
		return err
	}

	if err := c.loadSession(); err != nil {
		return err
	}
	c.api = apiclient.New(cfg.APIURL, cfg.Timeout)
	c.api.Token = c.session.Token

	provider, approver, err := c.paymentProvider()
	if err != nil {
		return err
	}
	c.flow = &checkout.Flow{
		Cart:   c.cart,
		Orders: c.api,
		Payments: &payment.Adapter{
			Provider: provider,
			Approver: approver,
			Orders:   c.api,
			Currency: cfg.Pricing.Currency,
			Log:      c.log,
		},
		Log: c.log,
	}
	return nil
}

func (c *cli) paymentProvider() (payment.Provider, payment.Approver, error) {
	switch c.cfg.PaymentProvider {
	case "sandbox":
		return payment.NewSandbox(), payment.AutoApprove, nil
	case "paypal":
		pp, err := payment.NewPayPal(payment.PayPalOptions{
			ClientID:     c.cfg.PayPal.ClientID,
			ClientSecret: c.cfg.PayPal.ClientSecret,
			BaseURL:      c.cfg.PayPal.BaseURL,
			Timeout:      c.cfg.PayPal.Timeout,
			Breaker: resilience.NewBreaker(resilience.BreakerSettings{
				Target:  "paypal",
				OpenFor: 30 * time.Second,
				Logger:  c.log,
			}),
		})
		if err != nil {
			return nil, nil, err
		}
		return pp, payment.ApproverFunc(c.approveInBrowser), nil
	default:
		return nil, nil, fmt.Errorf("unknown payment provider %q", c.cfg.PaymentProvider)
	}
}

// approveInBrowser asks the buyer to approve the payment and confirm here.
func (c *cli) approveInBrowser(ctx context.Context, created payment.Result) error {
	fmt.Fprintf(c.out, "Approve the payment in your browser:\n  %s\nPress Enter once approved, or type 'cancel': ", created.ApproveURL)
	line, err := c.readLine(ctx)
	if errors.Is(err, io.EOF) {
		return errors.New("input closed before approval was confirmed")
	}
	if err != nil {
		return err
	}
	if strings.EqualFold(strings.TrimSpace(line), "cancel") {
		return errors.New("cancelled by buyer")
	}
	return nil
}

// readLine waits for the next input line or ctx. A single reader goroutine
// feeds every prompt, so a cancelled prompt leaves its line for the next one.
func (c *cli) readLine(ctx context.Context) (string, error) {
	c.linesOnce.Do(func() {
		c.lines = make(chan string)
		go func() {
			defer close(c.lines)
			for {
				line, err := c.in.ReadString('\n')
				if line != "" {
					c.lines <- line
				}
				if err != nil {
					return
				}
			}
		}()
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

func (c *cli) loadSession() error {
	raw, ok, err := c.storage.Load(sessionKey)
	if err != nil || !ok {
		return err
	}
	if err := json.Unmarshal(raw, &c.session); err != nil {
		c.log.Warn().Err(err).Msg("dropping unreadable session")
		c.session = session{}
		return c.storage.Remove(sessionKey)
	}
	return nil
}

func (c *cli) saveSession(s session) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := c.storage.Save(sessionKey, body); err != nil {
		return err
	}
	c.session = s
	c.api.Token = s.Token
	return nil
}

func (c *cli) requireSession() error {
	if c.session.Token == "" {
		return errors.New("not signed in; run 'shopctl login' first")
	}
	return nil
}
