package resy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/resy-sniper/internal/reservation"
)

const (
	DefaultBaseURL = "https://api.resy.com"
	defaultTimeout = 3 * time.Second
	userAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"
)

var (
	ErrNoVenues          = errors.New("empty venues when finding slots")
	ErrNoSlots           = errors.New("empty slots when finding slots")
	ErrNoCompatibleSlots = errors.New("no compatible slots")
	ErrNoPaymentMethod   = errors.New("no default payment method")
)

// Client talks to the Resy API with credentials captured from an
// authenticated browser session. A Client is safe for concurrent use; all
// attempts of a run share its connection pool.
type Client struct {
	hc    *http.Client
	creds Credentials
	base  string
}

type Credentials struct {
	APIKey    string
	AuthToken string
}

type Option func(*Client)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.base = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func New(creds Credentials, opts ...Option) *Client {
	c := &Client{
		hc:    &http.Client{Timeout: defaultTimeout},
		creds: creds,
		base:  DefaultBaseURL,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Ping(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, "/2/user", "", nil, nil)
	if err != nil {
		return err
	}
	if status >= 400 {
		var r struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &r)
		if r.Message != "" {
			return fmt.Errorf("resy ping failed: %s (status=%d)", r.Message, status)
		}
		return fmt.Errorf("resy ping failed (status=%d)", status)
	}
	return nil
}

type findResponse struct {
	Results struct {
		Venues []struct {
			Slots []slot `json:"slots"`
		} `json:"venues"`
	} `json:"results"`
}

type slot struct {
	Size struct {
		Max int `json:"max"`
	} `json:"size"`
	Date struct {
		Start string `json:"start"`
	} `json:"date"`
	Config struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	} `json:"config"`
}

// FindSlots fetches the open slots for the target venue and day. It never
// returns an empty slice without an error.
func (c *Client) FindSlots(ctx context.Context, p reservation.TargetParameters) ([]reservation.Slot, error) {
	query := map[string]string{
		"venue_id":   strconv.Itoa(p.VenueID),
		"day":        p.Day(),
		"party_size": strconv.Itoa(p.PartySize),
		// deprecated but still required
		"lat":  "0",
		"long": "0",
	}
	status, body, err := c.do(ctx, http.MethodGet, "/4/find", "", query, nil)
	if err != nil {
		return nil, fmt.Errorf("find slots: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("find slots: status %d: %s", status, snippet(body))
	}

	var res findResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("find slots: %w: %s", err, snippet(body))
	}
	if len(res.Results.Venues) == 0 {
		return nil, ErrNoVenues
	}
	raw := res.Results.Venues[0].Slots
	if len(raw) == 0 {
		return nil, ErrNoSlots
	}

	out := make([]reservation.Slot, 0, len(raw))
	for _, s := range raw {
		start, err := reservation.ParseSlotStart(s.Date.Start)
		if err != nil {
			return nil, fmt.Errorf("find slots: slot start: %w", err)
		}
		out = append(out, reservation.Slot{
			MaxSize:     s.Size.Max,
			Start:       start,
			ConfigToken: s.Config.Token,
			Type:        s.Config.Type,
		})
	}
	return out, nil
}

// DefaultPaymentMethod returns the id of the account's default card.
func (c *Client) DefaultPaymentMethod(ctx context.Context) (int64, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/2/user", "", nil, nil)
	if err != nil {
		return 0, fmt.Errorf("get user: %w", err)
	}
	if status >= 400 {
		return 0, fmt.Errorf("get user (status=%d)", status)
	}
	var u struct {
		PaymentMethods []struct {
			ID        int64 `json:"id"`
			IsDefault bool  `json:"is_default"`
		} `json:"payment_methods"`
	}
	if err := json.Unmarshal(body, &u); err != nil {
		return 0, fmt.Errorf("get user: %w", err)
	}
	for _, pm := range u.PaymentMethods {
		if pm.IsDefault {
			return pm.ID, nil
		}
	}
	return 0, ErrNoPaymentMethod
}

type detailsRequest struct {
	ConfigID  string `json:"config_id"`
	Day       string `json:"day"`
	PartySize int    `json:"party_size"`
}

// BookToken exchanges a slot's config token for a short-lived book token.
func (c *Client) BookToken(ctx context.Context, p reservation.TargetParameters, s reservation.Slot) (string, error) {
	jb, err := json.Marshal(detailsRequest{ConfigID: s.ConfigToken, Day: p.Day(), PartySize: p.PartySize})
	if err != nil {
		return "", err
	}
	status, body, err := c.do(ctx, http.MethodPost, "/3/details", "application/json", nil, jb)
	if err != nil {
		return "", fmt.Errorf("details: %w", err)
	}
	if status >= 400 {
		return "", fmt.Errorf("failed to get booking details (status=%d)", status)
	}
	var details struct {
		BookToken struct {
			Value string `json:"value"`
		} `json:"book_token"`
	}
	if err := json.Unmarshal(body, &details); err != nil {
		return "", fmt.Errorf("details: %w", err)
	}
	if details.BookToken.Value == "" {
		return "", errors.New("details: missing book token")
	}
	return details.BookToken.Value, nil
}

// Book confirms a reservation and returns Resy's reservation token.
func (c *Client) Book(ctx context.Context, bookToken string, paymentMethodID int64) (string, error) {
	pm, err := json.Marshal(struct {
		ID int64 `json:"id"`
	}{ID: paymentMethodID})
	if err != nil {
		return "", err
	}
	form := url.Values{}
	form.Set("book_token", bookToken)
	form.Set("struct_payment_method", string(pm))

	status, body, err := c.do(ctx, http.MethodPost, "/3/book", "application/x-www-form-urlencoded", nil, []byte(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("book: %w", err)
	}
	if status >= 400 {
		return "", fmt.Errorf("failed to book reservation (status=%d): %s", status, snippet(body))
	}
	var res struct {
		ResyToken string `json:"resy_token"`
	}
	_ = json.Unmarshal(body, &res)
	return res.ResyToken, nil
}

// Reserve books the first slot compatible with p, in the order given.
// Slots whose details or booking call fails are skipped.
func (c *Client) Reserve(ctx context.Context, p reservation.TargetParameters, slots []reservation.Slot, paymentMethodID int64) (reservation.Slot, string, error) {
	log := zerolog.Ctx(ctx)
	candidates := reservation.Compatible(p, slots)
	if len(candidates) == 0 {
		return reservation.Slot{}, "", ErrNoCompatibleSlots
	}

	var errs []error
	for _, s := range candidates {
		token, err := c.BookToken(ctx, p, s)
		if err != nil {
			log.Warn().Err(err).Stringer("slot", s).Msg("could not get book token")
			errs = append(errs, err)
			continue
		}
		conf, err := c.Book(ctx, token, paymentMethodID)
		if err != nil {
			log.Warn().Err(err).Stringer("slot", s).Msg("missed reservation")
			errs = append(errs, err)
			continue
		}
		log.Info().Stringer("slot", s).Msg("booked reservation")
		return s, conf, nil
	}
	return reservation.Slot{}, "", fmt.Errorf("could not book any of %d compatible slots: %w", len(candidates), errors.Join(errs...))
}

func (c *Client) do(ctx context.Context, method, path, contentType string, query map[string]string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("user-agent", userAgent)
	req.Header.Set("origin", "https://resy.com")
	req.Header.Set("referer", "https://resy.com")
	req.Header.Set("x-origin", "https://resy.com")
	req.Header.Set("cache-control", "no-cache")
	if contentType != "" {
		req.Header.Set("content-type", contentType)
	}
	req.Header.Set("authorization", fmt.Sprintf(`ResyAPI api_key="%s"`, c.creds.APIKey))
	req.Header.Set("x-resy-auth-token", c.creds.AuthToken)
	req.Header.Set("x-resy-universal-auth", c.creds.AuthToken)

	if query != nil {
		q := req.URL.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}

func snippet(b []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
