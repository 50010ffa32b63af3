package cbr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Dan9191/reminder-service/internal/config"
	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrUnknownCurrency is returned when the CBR publishes no rate for a currency
var ErrUnknownCurrency = errors.New("unknown currency")

const (
	rouble          = "RUB"
	defaultCurrency = "EUR" // amounts stored without a currency are euros
)

// CBRClient converts amounts using the Central Bank of Russia daily rates.
// Every rate is quoted in roubles, which makes RUB the pivot currency.
type CBRClient struct {
	url    string
	base   string
	client *http.Client
	log    *logrus.Logger
	now    func() time.Time

	mu        sync.Mutex
	rates     map[string]decimal.Decimal
	ratesDate string
}

// NewCBRClient initializes a new CBR client
func NewCBRClient(cfg *config.Config, log *logrus.Logger) *CBRClient {
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CBRClient{
		url:  cfg.CBRURL,
		base: strings.ToUpper(cfg.BaseCurrency),
		client: &http.Client{
			Timeout: timeout,
		},
		log: log,
		now: time.Now,
	}
}

// BaseCurrency returns the currency Convert converts into
func (c *CBRClient) BaseCurrency() string {
	return c.base
}

// buildSOAPRequest creates a SOAP request for the rates on the given day
func (c *CBRClient) buildSOAPRequest(onDate time.Time) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
		<soap12:Envelope xmlns:soap12="http://www.w3.org/2003/05/soap-envelope">
			<soap12:Body>
				<GetCursOnDateXML xmlns="http://web.cbr.ru/">
					<On_date>%s</On_date>
				</GetCursOnDateXML>
			</soap12:Body>
		</soap12:Envelope>`, onDate.Format("2006-01-02"))
}

// sendRequest sends SOAP request to CBR
func (c *CBRClient) sendRequest(ctx context.Context, soapRequest string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBufferString(soapRequest))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")
	req.Header.Set("SOAPAction", "http://web.cbr.ru/GetCursOnDateXML")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.log.Debugf("CBR XML response: %s", string(body))
	return body, nil
}

// parseXMLResponse extracts the rouble price of one unit of each currency
func (c *CBRClient) parseXMLResponse(rawBody []byte) (map[string]decimal.Decimal, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}

	elements := doc.FindElements("//ValuteCursOnDate")
	if len(elements) == 0 {
		return nil, fmt.Errorf("no currency rates found in XML")
	}

	rates := map[string]decimal.Decimal{rouble: decimal.NewFromInt(1)}
	for _, el := range elements {
		code := el.FindElement("./VchCode")
		curs := el.FindElement("./Vcurs")
		nom := el.FindElement("./Vnom")
		if code == nil || curs == nil || nom == nil {
			continue
		}
		value, err := decimal.NewFromString(strings.TrimSpace(curs.Text()))
		if err != nil {
			return nil, fmt.Errorf("failed to parse rate for %s: %w", code.Text(), err)
		}
		units, err := decimal.NewFromString(strings.TrimSpace(nom.Text()))
		if err != nil || units.IsZero() {
			return nil, fmt.Errorf("invalid nominal for %s: %q", code.Text(), nom.Text())
		}
		rates[strings.ToUpper(strings.TrimSpace(code.Text()))] = value.Div(units)
	}
	return rates, nil
}

// Rates returns today's rates, fetching them at most once per day
func (c *CBRClient) Rates(ctx context.Context) (map[string]decimal.Decimal, error) {
	today := c.now().Format("2006-01-02")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rates != nil && c.ratesDate == today {
		return c.rates, nil
	}

	body, err := c.sendRequest(ctx, c.buildSOAPRequest(c.now()))
	if err != nil {
		if c.rates != nil {
			c.log.WithError(err).Warnf("Failed to refresh CBR rates, using rates from %s", c.ratesDate)
			return c.rates, nil
		}
		return nil, err
	}
	rates, err := c.parseXMLResponse(body)
	if err != nil {
		return nil, err
	}

	c.rates = rates
	c.ratesDate = today
	c.log.Infof("Retrieved %d CBR currency rates for %s", len(rates), today)
	return rates, nil
}

// Convert converts amount from the given currency into the base currency
func (c *CBRClient) Convert(ctx context.Context, amount decimal.Decimal, from string) (decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	if from == "" {
		from = defaultCurrency
	}
	if from == c.base || amount.IsZero() {
		return amount, nil
	}

	rates, err := c.Rates(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get rates: %w", err)
	}
	fromRate, ok := rates[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, from)
	}
	baseRate, ok := rates[c.base]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCurrency, c.base)
	}
	return amount.Mul(fromRate).Div(baseRate), nil
}
