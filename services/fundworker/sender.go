package fundworker

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"portfolium/observability"
)

var errSenderClosed = errors.New("fundworker: sender closed")

// TxBackend is the subset of the Ethereum RPC used to submit transactions.
type TxBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
}

// Call is a contract write submitted through the Sender.
type Call struct {
	Method     string
	To         common.Address
	Data       []byte
	Value      *big.Int
	DefaultGas uint64
}

type sendRequest struct {
	ctx    context.Context
	call   Call
	result chan sendResult
}

type sendResult struct {
	hash common.Hash
	err  error
}

// Sender is the single outbound queue of the application key. It owns nonce
// assignment so concurrent tasks never race on the same nonce.
type Sender struct {
	backend       TxBackend
	key           *ecdsa.PrivateKey
	from          common.Address
	signer        gethtypes.Signer
	nonces        *NonceStore
	marginPercent uint64
	logger        *slog.Logger
	metrics       *observability.WorkerMetrics

	queue     chan sendRequest
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// SenderOption customises a Sender.
type SenderOption func(*Sender)

// WithSenderLogger installs a custom logger.
func WithSenderLogger(logger *slog.Logger) SenderOption {
	return func(s *Sender) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGasMargin sets the percentage added on top of estimated gas.
func WithGasMargin(percent uint64) SenderOption {
	return func(s *Sender) { s.marginPercent = percent }
}

// NewSender starts the send loop. nonces may be nil, in which case the
// pending nonce reported by the node is authoritative.
func NewSender(backend TxBackend, key *ecdsa.PrivateKey, chainID *big.Int, nonces *NonceStore, opts ...SenderOption) (*Sender, error) {
	if backend == nil {
		return nil, fmt.Errorf("sender backend required")
	}
	if key == nil {
		return nil, fmt.Errorf("sender key required")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("sender chain id required")
	}
	s := &Sender{
		backend:       backend,
		key:           key,
		from:          gethcrypto.PubkeyToAddress(key.PublicKey),
		signer:        gethtypes.NewEIP155Signer(chainID),
		nonces:        nonces,
		marginPercent: defaultGasMarginPercent,
		logger:        slog.Default(),
		metrics:       observability.Worker(),
		queue:         make(chan sendRequest),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.wg.Add(1)
	go s.loop()
	return s, nil
}

// From returns the sending account.
func (s *Sender) From() common.Address { return s.from }

// Send queues call and waits until it has been broadcast.
func (s *Sender) Send(ctx context.Context, call Call) (common.Hash, error) {
	req := sendRequest{ctx: ctx, call: call, result: make(chan sendResult, 1)}
	select {
	case s.queue <- req:
	case <-s.done:
		return common.Hash{}, errSenderClosed
	case <-ctx.Done():
		return common.Hash{}, ctx.Err()
	}
	select {
	case res := <-req.result:
		return res.hash, res.err
	case <-ctx.Done():
		return common.Hash{}, ctx.Err()
	}
}

// Close stops the send loop after the in-flight send.
func (s *Sender) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *Sender) loop() {
	defer s.wg.Done()
	for {
		select {
		case req := <-s.queue:
			hash, err := s.send(req.ctx, req.call)
			s.metrics.RecordTransaction(req.call.Method, err)
			req.result <- sendResult{hash: hash, err: err}
		case <-s.done:
			return
		}
	}
}

func (s *Sender) send(ctx context.Context, call Call) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	nonce, err := s.nextNonce(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	gas := s.estimateGas(ctx, call, value)
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &call.To,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     call.Data,
	})
	signed, err := gethtypes.SignTx(tx, s.signer, s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign %s: %w", call.Method, err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send %s: %w", call.Method, err)
	}
	if err := s.nonces.Put(s.from, nonce+1); err != nil {
		s.logger.Warn("persist nonce failed", slog.Uint64("nonce", nonce), slog.String("error", err.Error()))
	}
	s.logger.Info("transaction sent",
		slog.String("method", call.Method),
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gas))
	return signed.Hash(), nil
}

// nextNonce prefers the stored nonce when the node lags behind transactions
// this sender already broadcast.
func (s *Sender) nextNonce(ctx context.Context) (uint64, error) {
	pending, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return 0, fmt.Errorf("pending nonce: %w", err)
	}
	stored, ok, err := s.nonces.Next(s.from)
	if err != nil {
		return 0, fmt.Errorf("stored nonce: %w", err)
	}
	if ok && stored > pending {
		return stored, nil
	}
	return pending, nil
}

// estimateGas adds the safety margin to the node's estimate and falls back to
// the call's default limit when estimation fails.
func (s *Sender) estimateGas(ctx context.Context, call Call, value *big.Int) uint64 {
	estimate, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.from,
		To:    &call.To,
		Value: value,
		Data:  call.Data,
	})
	if err != nil || estimate == 0 {
		s.metrics.RecordGasFallback(call.Method)
		attrs := []any{slog.String("method", call.Method), slog.Uint64("gas", call.DefaultGas)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		s.logger.Warn("gas estimation failed, using default limit", attrs...)
		return call.DefaultGas
	}
	return estimate + estimate*s.marginPercent/100
}
