package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/itemlink/backend/internal/config"
	"github.com/skip2/go-qrcode"
)

// QRService renders the platform's deposit instructions for a claim as a QR
// image so banking apps can prefill the transfer.
type QRService struct {
	db    *sql.DB
	redis *redis.Client
	cfg   *config.WalletConfig
}

func NewQRService(db *sql.DB, redisClient *redis.Client, cfg *config.WalletConfig) *QRService {
	return &QRService{
		db:    db,
		redis: redisClient,
		cfg:   cfg,
	}
}

// DepositInstructions is the payload encoded into the QR image.
type DepositInstructions struct {
	BankName      string `json:"bankName"`
	BankAccount   string `json:"bankAccount"`
	BankHolder    string `json:"bankHolder"`
	Amount        int64  `json:"amount"`
	DepositorName string `json:"depositorName"`
}

// GenerateDepositQR returns the instructions plus a base64 PNG QR for the
// given claim. Only the claim's owner or an admin may fetch it; a foreign
// claim reads as not found. Rendered images are cached briefly in redis
// when available.
func (s *QRService) GenerateDepositQR(ctx context.Context, depositID, callerID int, admin bool) (*DepositInstructions, string, error) {
	var ownerID int
	var amount int64
	var depositorName string
	err := s.db.QueryRow(`
		SELECT user_id, amount, depositor_name FROM deposit_requests WHERE id = $1`,
		depositID).Scan(&ownerID, &amount, &depositorName)
	if err == sql.ErrNoRows {
		return nil, "", fmt.Errorf("%w: deposit request %d", ErrNotFound, depositID)
	}
	if err != nil {
		return nil, "", err
	}
	if ownerID != callerID && !admin {
		return nil, "", fmt.Errorf("%w: deposit request %d", ErrNotFound, depositID)
	}

	instructions := &DepositInstructions{
		BankName:      s.cfg.BankName,
		BankAccount:   s.cfg.BankAccount,
		BankHolder:    s.cfg.BankHolder,
		Amount:        amount,
		DepositorName: depositorName,
	}

	cacheKey := fmt.Sprintf("deposit_qr:%d", depositID)
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			return instructions, cached, nil
		}
	}

	payload, err := json.Marshal(instructions)
	if err != nil {
		return nil, "", err
	}

	qr, err := qrcode.New(string(payload), qrcode.Medium)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return nil, "", err
	}

	qrImage := base64.StdEncoding.EncodeToString(buf.Bytes())

	if s.redis != nil {
		s.redis.Set(ctx, cacheKey, qrImage, 5*time.Minute)
	}

	return instructions, qrImage, nil
}
