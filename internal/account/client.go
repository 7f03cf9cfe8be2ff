// Package account talks to the external account-creation service. The
// pipeline only ever consumes this collaborator at the very end of a
// registration flow.
package account

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CreateRequest is the payload the account service consumes. Identity
// fields come from the reviewed record; email, phone and password are the
// out-of-band credentials collected earlier in the registration flow.
type CreateRequest struct {
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Email             string `json:"email"`
	PhoneNumber       string `json:"phoneNumber"`
	Password          string `json:"password"`
	BirthDate         string `json:"birthDate"`
	IDExpirationDate  string `json:"idExpirationDate"`
	BirthPlace        string `json:"birthPlace"`
	CardNumber        string `json:"cardNumber"`
	FatherFullName    string `json:"fatherFullName"`
	MotherFullName    string `json:"motherFullName"`
	Address           string `json:"address"`
	Gender            string `json:"gender"`
	CivilStatusNumber string `json:"civilStatusNumber"`
}

// Creator is the capability the pipeline depends on.
type Creator interface {
	CreateAccount(ctx context.Context, req *CreateRequest) error
}

// Client posts account-creation requests to the user service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds an account service client for the given base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.Named("account_client"),
	}
}

// CreateAccount submits the registration payload.
func (c *Client) CreateAccount(ctx context.Context, createReq *CreateRequest) error {
	jsonData, err := json.Marshal(createReq)
	if err != nil {
		return fmt.Errorf("failed to marshal account request: %w", err)
	}

	url := c.baseURL + "/api/users/register"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create account request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute account request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("account creation failed with status %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Info("account created", zap.String("email", createReq.Email))
	return nil
}
