package application

import (
	"time"

	"github.com/bnema/focuscoin/internal/domain"
)

type Status struct {
	GeneratedAt  time.Time             `json:"generatedAt"`
	DeviceID     string                `json:"deviceId"`
	Wallet       domain.WalletSnapshot `json:"wallet"`
	Sessions     []domain.Session      `json:"sessions"`
	Emergency    EmergencyStatus       `json:"emergency"`
	Transactions []domain.Transaction  `json:"transactions"`
}
