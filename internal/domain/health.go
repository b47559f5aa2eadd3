package domain

// ============================================================
// Health API Responses
// ============================================================

// Health statuses.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"`
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of one dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
	Error       string `json:"error,omitempty"`
}

// Overall folds dependency statuses into one: any unhealthy dependency
// makes the service unhealthy, otherwise any degraded one degrades it.
func Overall(services []ServiceHealth) string {
	status := HealthHealthy
	for _, s := range services {
		if s.Status == HealthUnhealthy {
			return HealthUnhealthy
		}
		if s.Status == HealthDegraded {
			status = HealthDegraded
		}
	}
	return status
}

// ============================================================
// Ledger API Requests
// ============================================================

// CreateAccountRequest is the body of POST /v1/accounts.
type CreateAccountRequest struct {
	CustomerName   string  `json:"customerName"`
	AccountType    string  `json:"accountType"`
	InitialDeposit *Amount `json:"initialDeposit,omitempty"`
}

// MoneyRequest is the body of the deposit and withdraw routes.
type MoneyRequest struct {
	Amount      Amount `json:"amount"`
	Description string `json:"description,omitempty"`
}

// TransferRequest is the body of POST /v1/transfers.
type TransferRequest struct {
	FromAccount string `json:"fromAccount"`
	ToAccount   string `json:"toAccount"`
	Amount      Amount `json:"amount"`
	Description string `json:"description,omitempty"`
}
