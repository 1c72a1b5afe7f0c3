package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/sha3"

	"quiz-commit-service/internal/domain"
)

// ChainClient writes a commitment to the quiz contract. Acceptance is irreversible.
type ChainClient interface {
	SubmitCommitment(ctx context.Context, contract string, commitment [32]byte) (txHash string, err error)
}

// BackendClient stores the plaintext answers for grading.
type BackendClient interface {
	SubmitAnswers(ctx context.Context, submission domain.Submission) error
}

// Wallet reports whether a signing account is available.
type Wallet interface {
	Connected(ctx context.Context) bool
}

// CommitmentLedger remembers on-chain commitments until their backend leg lands.
// Entries are keyed by idempotency key: identical answer sets from different
// sessions share a commitment but not a key.
type CommitmentLedger interface {
	RecordCommitment(ctx context.Context, entry domain.LedgerEntry) error
	MarkBackendStored(ctx context.Context, idempotencyKey string) error
	Pending(ctx context.Context, limit int) ([]domain.LedgerEntry, error)
}

// PayloadOrder selects how answers are ordered in the canonical payload.
type PayloadOrder string

const (
	// OrderQuestion orders answers by question position.
	OrderQuestion PayloadOrder = "question"
	// OrderRecorded orders answers by when each question was first answered.
	OrderRecorded PayloadOrder = "recorded"
)

// ParsePayloadOrder maps a config value to a PayloadOrder, defaulting to question order.
func ParsePayloadOrder(raw string) PayloadOrder {
	if PayloadOrder(raw) == OrderRecorded {
		return OrderRecorded
	}
	return OrderQuestion
}

// DefaultContract is the quiz protocol contract commitments are sent to.
const DefaultContract = "0xCd1a3b3FADffAcf76beA7B5C264515E91f996Cc1"

// CommitConfig configures a CommitProtocol.
type CommitConfig struct {
	Contract string
	Order    PayloadOrder
}

// CommitProtocol drives the two-channel submit: commitment on-chain first, then
// the plaintext answers to the backend.
type CommitProtocol struct {
	chain    ChainClient
	backend  BackendClient
	wallet   Wallet
	ledger   CommitmentLedger
	contract string
	order    PayloadOrder
	now      func() time.Time
	newKey   func() string
	log      logrus.FieldLogger
}

func NewCommitProtocol(chain ChainClient, backend BackendClient, wallet Wallet, ledger CommitmentLedger, cfg CommitConfig, log logrus.FieldLogger) *CommitProtocol {
	if cfg.Contract == "" {
		cfg.Contract = DefaultContract
	}
	if cfg.Order == "" {
		cfg.Order = OrderQuestion
	}
	if ledger == nil {
		ledger = nopLedger{}
	}
	return &CommitProtocol{
		chain:    chain,
		backend:  backend,
		wallet:   wallet,
		ledger:   ledger,
		contract: cfg.Contract,
		order:    cfg.Order,
		now:      time.Now,
		newKey:   uuid.NewString,
		log:      log.WithField("component", "commit"),
	}
}

// Commit builds the submission for answers and sends it through both channels.
// The returned receipt reflects how far the attempt got, even on error.
func (p *CommitProtocol) Commit(ctx context.Context, quiz domain.Quiz, answers []domain.Answer) (domain.Receipt, error) {
	if !p.wallet.Connected(ctx) {
		return domain.Receipt{}, domain.ErrNotConnected
	}

	payload, err := BuildPayload(quiz, answers, p.order)
	if err != nil {
		return domain.Receipt{}, err
	}
	submission, err := p.newSubmission(payload)
	if err != nil {
		return domain.Receipt{}, err
	}
	receipt := domain.Receipt{Submission: submission}
	log := p.log.WithFields(logrus.Fields{
		"quiz_id":    quiz.ID,
		"commitment": submission.CommitmentHex(),
		"answers":    len(payload.Answers),
	})

	txHash, err := p.chain.SubmitCommitment(ctx, p.contract, submission.Commitment)
	if err != nil {
		log.WithError(err).Warn("commitment write failed")
		return receipt, fmt.Errorf("%w: %w", domain.ErrChainRejected, err)
	}
	receipt.TxHash = txHash
	receipt.ChainAccepted = true
	log = log.WithField("tx_hash", txHash)
	log.Info("commitment accepted")

	if err := p.ledger.RecordCommitment(ctx, domain.LedgerEntry{
		Commitment:     submission.CommitmentHex(),
		IdempotencyKey: submission.IdempotencyKey,
		QuizID:         quiz.ID,
		TxHash:         txHash,
		Body:           submission.Body,
		CreatedAt:      submission.CreatedAt,
	}); err != nil {
		log.WithError(err).Error("ledger record failed")
	}

	return p.RetryBackend(ctx, receipt)
}

// RetryBackend sends only the backend leg of an already committed receipt.
// The submission, and therefore its idempotency key, is reused as is.
func (p *CommitProtocol) RetryBackend(ctx context.Context, receipt domain.Receipt) (domain.Receipt, error) {
	if !receipt.ChainAccepted {
		return receipt, fmt.Errorf("%w: commitment not on chain", domain.ErrInvalidPhase)
	}
	sub := receipt.Submission
	log := p.log.WithFields(logrus.Fields{
		"quiz_id":    sub.Payload.QuizID,
		"commitment": sub.CommitmentHex(),
	})
	if err := p.backend.SubmitAnswers(ctx, sub); err != nil {
		log.WithError(err).Error("backend leg failed after chain commit")
		return receipt, fmt.Errorf("%w: %w", domain.ErrBackendRejected, err)
	}
	receipt.BackendStored = true
	receipt.BackendAckedAt = p.now()
	if err := p.ledger.MarkBackendStored(ctx, sub.IdempotencyKey); err != nil {
		log.WithError(err).Warn("ledger update failed")
	}
	log.Info("answers stored")
	return receipt, nil
}

// Reconcile retries the backend leg for up to limit commitments still pending
// in the ledger and returns how many landed.
func (p *CommitProtocol) Reconcile(ctx context.Context, limit int) (int, error) {
	pending, err := p.ledger.Pending(ctx, limit)
	if err != nil {
		return 0, err
	}
	landed := 0
	for _, entry := range pending {
		sub, err := SubmissionFromEntry(entry)
		if err != nil {
			p.log.WithError(err).WithField("commitment", entry.Commitment).Error("skipping unreadable ledger entry")
			continue
		}
		receipt := domain.Receipt{Submission: sub, TxHash: entry.TxHash, ChainAccepted: true}
		if _, err := p.RetryBackend(ctx, receipt); err != nil {
			continue
		}
		landed++
	}
	return landed, nil
}

// RunReconciler calls Reconcile every interval until ctx is done.
func (p *CommitProtocol) RunReconciler(ctx context.Context, interval time.Duration, limit int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		landed, err := p.Reconcile(ctx, limit)
		if err != nil {
			if ctx.Err() == nil {
				p.log.WithError(err).Warn("reconcile pass failed")
			}
			continue
		}
		if landed > 0 {
			p.log.WithField("landed", landed).Info("reconciled pending commitments")
		}
	}
}

func (p *CommitProtocol) newSubmission(payload domain.Payload) (domain.Submission, error) {
	body, err := EncodePayload(payload)
	if err != nil {
		return domain.Submission{}, err
	}
	return domain.Submission{
		Payload:        payload,
		Body:           body,
		Commitment:     Commitment(body),
		IdempotencyKey: p.newKey(),
		CreatedAt:      p.now(),
	}, nil
}

// BuildPayload resolves each answer's catalog question id and uppercase label.
// Unanswered questions are omitted.
func BuildPayload(quiz domain.Quiz, answers []domain.Answer, order PayloadOrder) (domain.Payload, error) {
	type entry struct {
		pos int
		seq int
		ans domain.CanonicalAnswer
	}
	entries := make([]entry, 0, len(answers))
	for _, a := range answers {
		question, pos, ok := quiz.QuestionByID(a.QuestionID)
		if !ok {
			return domain.Payload{}, fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, a.QuestionID)
		}
		entries = append(entries, entry{
			pos: pos,
			seq: a.Seq,
			ans: domain.CanonicalAnswer{QuestionID: question.OriginalID, Answer: a.Value.Label()},
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if order == OrderRecorded {
			return entries[i].seq < entries[j].seq
		}
		return entries[i].pos < entries[j].pos
	})

	payload := domain.Payload{QuizID: quiz.ID, Answers: make([]domain.CanonicalAnswer, 0, len(entries))}
	for _, e := range entries {
		payload.Answers = append(payload.Answers, e.ans)
	}
	return payload, nil
}

// EncodePayload serializes the payload the same way a browser JSON.stringify
// would: no HTML escaping, no trailing newline.
func EncodePayload(payload domain.Payload) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Commitment is keccak-256 over body.
func Commitment(body []byte) [32]byte {
	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(body)
	h.Sum(out[:0])
	return out
}

// SubmissionFromEntry rebuilds a submission from its ledger record.
func SubmissionFromEntry(entry domain.LedgerEntry) (domain.Submission, error) {
	var payload domain.Payload
	if err := json.Unmarshal(entry.Body, &payload); err != nil {
		return domain.Submission{}, fmt.Errorf("decode ledger body: %w", err)
	}
	sub := domain.Submission{
		Payload:        payload,
		Body:           entry.Body,
		Commitment:     Commitment(entry.Body),
		IdempotencyKey: entry.IdempotencyKey,
		CreatedAt:      entry.CreatedAt,
	}
	if sub.CommitmentHex() != entry.Commitment {
		return domain.Submission{}, fmt.Errorf("ledger entry %s: body does not match commitment", entry.Commitment)
	}
	return sub, nil
}

type nopLedger struct{}

func (nopLedger) RecordCommitment(context.Context, domain.LedgerEntry) error { return nil }
func (nopLedger) MarkBackendStored(context.Context, string) error            { return nil }
func (nopLedger) Pending(context.Context, int) ([]domain.LedgerEntry, error) { return nil, nil }
