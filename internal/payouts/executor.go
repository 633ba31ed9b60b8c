package payouts

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mmn-engine/pkg/config"
	"github.com/angelmondragon/mmn-engine/pkg/enums"
	"github.com/angelmondragon/mmn-engine/pkg/logger"
)

// ExecutionRequest is what a rail needs to move money.
type ExecutionRequest struct {
	PayoutID    uuid.UUID
	MemberID    uuid.UUID
	Method      enums.PayoutMethod
	NetAmount   decimal.Decimal
	Currency    string
	Destination Destination
}

// ExecutionResult reports the rail's reference for a transfer.
type ExecutionResult struct {
	ExternalReference string
}

// Executor performs a transfer on one rail. The payout workflow records the
// attempt only; retries belong to the rail.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}

// ExecutorConfig carries rail credentials. It is passed explicitly instead of
// being read from the process environment by each executor.
type ExecutorConfig struct {
	BankAPIKey      string
	PayPalClientID  string
	PayPalSecret    string
	CryptoWalletKey string
}

// ExecutorConfigFrom lifts credentials out of the payouts config section.
func ExecutorConfigFrom(cfg config.PayoutsConfig) ExecutorConfig {
	return ExecutorConfig{
		BankAPIKey:      cfg.BankAPIKey,
		PayPalClientID:  cfg.PayPalClientID,
		PayPalSecret:    cfg.PayPalSecret,
		CryptoWalletKey: cfg.CryptoWalletKey,
	}
}

// HasCredentials reports whether a rail for method can be authenticated.
func (c ExecutorConfig) HasCredentials(method enums.PayoutMethod) bool {
	switch method {
	case enums.PayoutMethodBankTransfer:
		return c.BankAPIKey != ""
	case enums.PayoutMethodPaypal:
		return c.PayPalClientID != "" && c.PayPalSecret != ""
	case enums.PayoutMethodCrypto:
		return c.CryptoWalletKey != ""
	case enums.PayoutMethodWallet:
		return true
	}
	return false
}

// ExecutorRegistry resolves the executor for a payout method.
type ExecutorRegistry struct {
	mu        sync.RWMutex
	cfg       ExecutorConfig
	executors map[enums.PayoutMethod]Executor
}

// NewExecutorRegistry seeds every method with the manual executor.
func NewExecutorRegistry(cfg ExecutorConfig, logg *logger.Logger) *ExecutorRegistry {
	manual := NewManualExecutor(logg)
	executors := map[enums.PayoutMethod]Executor{}
	for _, method := range enums.PayoutMethods() {
		executors[method] = manual
	}
	return &ExecutorRegistry{cfg: cfg, executors: executors}
}

// Register installs a rail executor. Rails other than the internal wallet
// need credentials in the registry's config.
func (r *ExecutorRegistry) Register(method enums.PayoutMethod, exec Executor) error {
	if !method.IsValid() {
		return fmt.Errorf("unsupported payout method %q", method)
	}
	if exec == nil {
		return fmt.Errorf("executor for %s is nil", method)
	}
	if !r.cfg.HasCredentials(method) {
		return fmt.Errorf("no credentials configured for %s", method)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[method] = exec
	return nil
}

func (r *ExecutorRegistry) For(method enums.PayoutMethod) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[method]
	return exec, ok
}

// ManualExecutor hands transfers to back-office staff. It never fails; the
// payout stays processing until an operator completes or fails it.
type ManualExecutor struct {
	logg *logger.Logger
}

func NewManualExecutor(logg *logger.Logger) *ManualExecutor {
	if logg == nil {
		logg = logger.Discard()
	}
	return &ManualExecutor{logg: logg}
}

func (m *ManualExecutor) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"payout_id":  req.PayoutID.String(),
		"member_id":  req.MemberID.String(),
		"method":     string(req.Method),
		"net_amount": req.NetAmount.String(),
	}), "payout queued for manual settlement")
	return &ExecutionResult{ExternalReference: "manual:" + req.PayoutID.String()}, nil
}
