// Package chain provides the read-only facade over the bounty and oracle
// evaluation contracts. No caching happens here; callers batch as needed.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/verdikta/verdikta-applications-sub002/internal/core"
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/model"
	apperrors "github.com/verdikta/verdikta-applications-sub002/internal/errors"
)

// Backend is the subset of the ethclient surface the adapter consumes.
// ethclient.Client satisfies it; tests substitute a stub.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	BlockNumber(ctx context.Context) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Adapter reads bounty contract state over JSON-RPC.
type Adapter struct {
	backend      Backend
	bountyABI    abi.ABI
	evalABI      abi.ABI
	contract     common.Address
	evalContract common.Address
	callTimeout  time.Duration
	logger       *slog.Logger
	sleep        func(ctx context.Context, d time.Duration) error
}

var (
	_ core.ChainReader      = (*Adapter)(nil)
	_ core.EvaluationReader = (*Adapter)(nil)
	_ core.ReceiptReader    = (*Adapter)(nil)
)

// Options groups dependencies for Adapter.
type Options struct {
	RPCURL                    string        // Required unless Backend is provided
	Backend                   Backend       // Optional: overrides RPCURL (tests)
	ContractAddress           string        // Required: authoritative bounty contract
	EvaluationContractAddress string        // Optional: oracle evaluation contract
	CallTimeout               time.Duration // Optional: per-call bound, default 30s
	Logger                    *slog.Logger  // Optional: structured logger
}

// New connects to the RPC endpoint and prepares the ABI codecs.
func New(opts Options) (*Adapter, error) {
	if opts.ContractAddress == "" {
		return nil, apperrors.Validation("contract address is required")
	}
	if !common.IsHexAddress(opts.ContractAddress) {
		return nil, apperrors.Validationf("invalid contract address %q", opts.ContractAddress)
	}

	backend := opts.Backend
	if backend == nil {
		if opts.RPCURL == "" {
			return nil, apperrors.Validation("rpc url is required")
		}
		client, err := ethclient.Dial(opts.RPCURL)
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeTransient, "connect to rpc %s", opts.RPCURL)
		}
		backend = client
	}

	bountyABI, err := abi.JSON(strings.NewReader(bountyABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse bounty abi: %w", err)
	}
	evalABI, err := abi.JSON(strings.NewReader(evaluationABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse evaluation abi: %w", err)
	}

	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "chain_adapter")
	}

	a := &Adapter{
		backend:     backend,
		bountyABI:   bountyABI,
		evalABI:     evalABI,
		contract:    common.HexToAddress(opts.ContractAddress),
		callTimeout: timeout,
		logger:      logger,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-time.After(d):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	if opts.EvaluationContractAddress != "" {
		if !common.IsHexAddress(opts.EvaluationContractAddress) {
			return nil, apperrors.Validationf("invalid evaluation contract address %q", opts.EvaluationContractAddress)
		}
		a.evalContract = common.HexToAddress(opts.EvaluationContractAddress)
	}
	return a, nil
}

// BountyCount returns the total number of bounties ever created.
func (a *Adapter) BountyCount(ctx context.Context) (int64, error) {
	out, err := a.call(ctx, a.contract, a.bountyABI, "bountyCount")
	if err != nil {
		return 0, err
	}
	count, ok := out[0].(*big.Int)
	if !ok {
		return 0, apperrors.Permanent("bountyCount: unexpected return type")
	}
	return count.Int64(), nil
}

// GetBounty reads one bounty struct.
func (a *Adapter) GetBounty(ctx context.Context, bountyID int64) (*core.Bounty, error) {
	out, err := a.call(ctx, a.contract, a.bountyABI, "getBounty", big.NewInt(bountyID))
	if err != nil {
		return nil, err
	}
	if len(out) < 10 {
		return nil, apperrors.Permanentf("getBounty(%d): short return", bountyID)
	}

	bounty := &core.Bounty{ID: bountyID}
	var ok bool
	var creator, winner common.Address
	if creator, ok = out[0].(common.Address); !ok {
		return nil, apperrors.Permanentf("getBounty(%d): bad creator", bountyID)
	}
	bounty.Creator = strings.ToLower(creator.Hex())
	if bounty.EvaluationCID, ok = out[1].(string); !ok {
		return nil, apperrors.Permanentf("getBounty(%d): bad evaluationCid", bountyID)
	}
	bounty.ClassID = asInt64(out[2])
	bounty.Threshold = asInt64(out[3])
	if payout, isBig := out[4].(*big.Int); isBig {
		bounty.PayoutWei = new(big.Int).Set(payout)
	}
	bounty.CreatedAt = asInt64(out[5])
	bounty.SubmissionDeadline = asInt64(out[6])
	if raw, isByte := out[7].(uint8); isByte {
		bounty.RawStatus = raw
	}
	if winner, ok = out[8].(common.Address); ok && winner != (common.Address{}) {
		bounty.Winner = strings.ToLower(winner.Hex())
	}
	bounty.SubmissionCount = asInt64(out[9])

	return bounty, nil
}

// GetSubmission reads one submission struct.
func (a *Adapter) GetSubmission(ctx context.Context, bountyID, submissionID int64) (*core.ChainSubmission, error) {
	out, err := a.call(ctx, a.contract, a.bountyABI, "getSubmission", big.NewInt(bountyID), big.NewInt(submissionID))
	if err != nil {
		return nil, err
	}
	if len(out) < 7 {
		return nil, apperrors.Permanentf("getSubmission(%d,%d): short return", bountyID, submissionID)
	}

	sub := &core.ChainSubmission{
		BountyID:     bountyID,
		SubmissionID: submissionID,
	}
	if hunter, ok := out[0].(common.Address); ok {
		sub.Hunter = strings.ToLower(hunter.Hex())
	}
	sub.EvaluationCID, _ = out[1].(string)
	sub.HunterCID, _ = out[2].(string)
	if agg, ok := out[3].([32]byte); ok {
		sub.AggregatorID = "0x" + common.Bytes2Hex(agg[:])
	}
	if raw, ok := out[4].(uint8); ok {
		sub.RawStatus = model.ChainSubmissionStatus(raw)
	}
	sub.SubmittedAt = asInt64(out[5])
	sub.FinalizedAt = asInt64(out[6])

	return sub, nil
}

// GetEvaluation reads the oracle verdict for an aggregator id. Calls are
// never retried; the oracle's "not ready" revert maps to OK=false with a nil
// error so status mapping treats it as still pending.
func (a *Adapter) GetEvaluation(ctx context.Context, aggregatorID string) (*core.Evaluation, error) {
	if a.evalContract == (common.Address{}) {
		return &core.Evaluation{OK: false}, nil
	}

	aggID, err := parseAggregatorID(aggregatorID)
	if err != nil {
		return nil, err
	}

	out, err := a.call(ctx, a.evalContract, a.evalABI, "getEvaluation", aggID)
	if err != nil {
		if isNotReady(err) {
			return &core.Evaluation{OK: false}, nil
		}
		return nil, err
	}
	if len(out) < 3 {
		return nil, apperrors.Permanent("getEvaluation: short return")
	}

	eval := &core.Evaluation{}
	if scores, ok := out[0].([]*big.Int); ok {
		eval.Scores = make([]int64, len(scores))
		for i, s := range scores {
			eval.Scores[i] = s.Int64()
		}
	}
	eval.JustificationCIDs, _ = out[1].(string)
	eval.OK, _ = out[2].(bool)

	return eval, nil
}

// BlockNumber returns the current head block.
func (a *Adapter) BlockNumber(ctx context.Context) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	n, err := a.backend.BlockNumber(callCtx)
	if err != nil {
		return 0, wrapRPC(err, "block number")
	}
	return n, nil
}

// GetLogs returns decoded contract events in [fromBlock, toBlock], retrying
// transient RPC failures with exponential backoff (1s, 2s, 4s; 3 retries).
func (a *Adapter) GetLogs(ctx context.Context, fromBlock, toBlock uint64) ([]core.Event, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{a.contract},
	}

	var logs []types.Log
	var err error
	backoff := time.Second
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
		logs, err = a.backend.FilterLogs(callCtx, query)
		cancel()
		if err == nil {
			break
		}
		if attempt >= 3 || !isTransientRPC(err) {
			return nil, wrapRPC(err, "filter logs")
		}
		if a.logger != nil {
			a.logger.WarnContext(ctx, "log query failed, retrying",
				"attempt", attempt+1,
				"backoff", backoff,
				"error", err,
			)
		}
		if sleepErr := a.sleep(ctx, backoff); sleepErr != nil {
			return nil, apperrors.Wrap(sleepErr, apperrors.ErrCodeCanceled, "filter logs")
		}
		backoff *= 2
	}

	events := make([]core.Event, 0, len(logs))
	for _, lg := range logs {
		if event, ok := a.decodeEvent(lg); ok {
			events = append(events, event)
		}
	}
	return events, nil
}

// BountyIDFromReceipt scans a transaction receipt for a BountyCreated log
// emitted by the given contract.
func (a *Adapter) BountyIDFromReceipt(ctx context.Context, txHash, contractAddress string) (int64, bool, error) {
	if !common.IsHexAddress(contractAddress) {
		return 0, false, apperrors.Validationf("invalid contract address %q", contractAddress)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	receipt, err := a.backend.TransactionReceipt(callCtx, common.HexToHash(txHash))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return 0, false, nil
		}
		return 0, false, wrapRPC(err, "transaction receipt")
	}

	wanted := common.HexToAddress(contractAddress)
	createdTopic := a.bountyABI.Events["BountyCreated"].ID
	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != wanted {
			continue
		}
		if len(lg.Topics) >= 2 && lg.Topics[0] == createdTopic {
			return new(big.Int).SetBytes(lg.Topics[1].Bytes()).Int64(), true, nil
		}
	}
	return 0, false, nil
}

func (a *Adapter) decodeEvent(lg types.Log) (core.Event, bool) {
	if len(lg.Topics) == 0 {
		return core.Event{}, false
	}

	event := core.Event{
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash.Hex(),
	}

	switch lg.Topics[0] {
	case a.bountyABI.Events["BountyCreated"].ID:
		event.Kind = core.EventBountyCreated
	case a.bountyABI.Events["BountyClosed"].ID:
		event.Kind = core.EventBountyClosed
	case a.bountyABI.Events["SubmissionPrepared"].ID:
		event.Kind = core.EventSubmissionPrepared
	case a.bountyABI.Events["WorkSubmitted"].ID:
		event.Kind = core.EventWorkSubmitted
	case a.bountyABI.Events["SubmissionFinalized"].ID:
		event.Kind = core.EventSubmissionFinalized
	case a.bountyABI.Events["PayoutSent"].ID:
		event.Kind = core.EventPayoutSent
	case a.bountyABI.Events["LinkRefunded"].ID:
		event.Kind = core.EventLinkRefunded
	default:
		return core.Event{}, false
	}

	if len(lg.Topics) >= 2 {
		event.BountyID = new(big.Int).SetBytes(lg.Topics[1].Bytes()).Int64()
	}
	if len(lg.Topics) >= 3 {
		switch event.Kind {
		case core.EventSubmissionPrepared, core.EventWorkSubmitted, core.EventSubmissionFinalized:
			event.SubmissionID = new(big.Int).SetBytes(lg.Topics[2].Bytes()).Int64()
		}
	}
	return event, true
}

func (a *Adapter) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodePermanent, "pack %s", method)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	data, err := a.backend.CallContract(callCtx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, wrapRPC(err, method)
	}

	out, err := contractABI.Unpack(method, data)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodePermanent, "unpack %s", method)
	}
	return out, nil
}

func parseAggregatorID(aggregatorID string) ([32]byte, error) {
	var aggID [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(aggregatorID), "0x")
	raw := common.Hex2Bytes(trimmed)
	if len(raw) != 32 {
		return aggID, apperrors.Validationf("aggregator id must be 32 bytes, got %d", len(raw))
	}
	copy(aggID[:], raw)
	return aggID, nil
}

func asInt64(v any) int64 {
	if b, ok := v.(*big.Int); ok {
		return b.Int64()
	}
	return 0
}

// isTransientRPC reports whether an RPC failure is worth retrying: rate
// limits, timeouts, and upstream 5xx responses.
func isTransientRPC(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit", "too many requests",
		"timeout", "deadline exceeded", "connection",
		"502", "503", "504", "server error", "try again",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isNotReady matches the oracle's expected revert while aggregation is still
// in flight.
func isNotReady(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not ready") || strings.Contains(msg, "execution reverted")
}

func wrapRPC(err error, msg string) error {
	if err == nil {
		return nil
	}
	if isTransientRPC(err) {
		return apperrors.Wrap(err, apperrors.ErrCodeTransient, msg)
	}
	return apperrors.Wrap(err, apperrors.ErrCodePermanent, msg)
}
