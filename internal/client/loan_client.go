package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segyhp/loan-platform/internal/domain"

	customError "github.com/segyhp/loan-platform/pkg/errors"
)

// InternalKeyHeader carries the shared key that lets the payments service
// advance a schedule on behalf of the owning client.
const InternalKeyHeader = "X-Internal-Key"

// LoanClient talks to the loans service over HTTP.
type LoanClient struct {
	baseURL     string
	internalKey string
	httpClient  *http.Client
}

func NewLoanClient(baseURL, internalKey string, timeout time.Duration) *LoanClient {
	return &LoanClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		internalKey: internalKey,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

type advanceRequest struct {
	LoanID   string `json:"loanId"`
	Sequence int    `json:"sequence,omitempty"`
}

func (c *LoanClient) GetLoan(ctx context.Context, caller domain.Caller, loanID uuid.UUID) (*domain.Loan, error) {
	var loan domain.Loan
	if err := c.do(ctx, caller, http.MethodGet, "/loans/"+loanID.String(), nil, nil, &loan); err != nil {
		return nil, err
	}
	return &loan, nil
}

// GetSchedule asks for the stored schedule, never a cached copy, since the
// payment picks its installment from it.
func (c *LoanClient) GetSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID) ([]*domain.Installment, error) {
	header := http.Header{}
	header.Set("Cache-Control", "no-cache")

	var schedule []*domain.Installment
	if err := c.do(ctx, caller, http.MethodGet, "/loans/amortization/"+loanID.String(), header, nil, &schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

func (c *LoanClient) AdvanceSchedule(ctx context.Context, caller domain.Caller, loanID uuid.UUID, sequence int) (*domain.AdvanceResult, error) {
	body := advanceRequest{LoanID: loanID.String(), Sequence: sequence}

	var result domain.AdvanceResult
	if err := c.do(ctx, caller, http.MethodPut, "/loans/amortization/advance", nil, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *LoanClient) do(ctx context.Context, caller domain.Caller, method, path string, header http.Header, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return customError.WrapTransportError(err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return customError.WrapTransportError(err)
	}
	for name, values := range header {
		req.Header[name] = values
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+caller.Credential)
	}
	if c.internalKey != "" {
		req.Header.Set(InternalKeyHeader, c.internalKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return customError.WrapTransportError(err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return customError.WrapTransportError(fmt.Errorf("decode %s %s response (status %d): %w", method, path, resp.StatusCode, err))
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		if env.Error == "" {
			return customError.WrapTransportError(fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode))
		}
		return customError.FromCode(env.Error, env.Message)
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return customError.WrapTransportError(fmt.Errorf("decode %s %s payload: %w", method, path, err))
	}
	return nil
}
