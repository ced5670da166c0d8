package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/fieldstock/internal/model"
)

// DefaultCommitNote tags every deduction issued by a reconciliation commit.
const DefaultCommitNote = "bulk consumption reconciliation"

// DeductionSink applies stock deductions. ok=false with a message is a
// rejected deduction; a non-nil error means the ledger could not be reached
// and the outcome is unknown.
type DeductionSink interface {
	ApplyDeduction(ctx context.Context, d model.Deduction) (ok bool, message string, err error)
}

// CommitOptions tunes a commit batch.
type CommitOptions struct {
	Note       string
	PackageTag string
	// Limiter paces deductions against the ledger. Nil means unpaced.
	Limiter *rate.Limiter
	Now     func() time.Time
}

// Commit issues one deduction per row with a positive reported quantity, in
// input order. A rejected row is recorded and the batch continues; nothing is
// retried or rolled back. If the ledger becomes unreachable the batch stops,
// the failing row is recorded with an unknown outcome, and the partial result
// is returned with a *LedgerError.
//
// Commit ignores cancellation of ctx once it starts: a batch runs to
// completion or to the first transport failure.
func Commit(ctx context.Context, sink DeductionSink, rows []model.ReconciledRow, opts CommitOptions) (model.CommitResult, error) {
	ctx = context.WithoutCancel(ctx)
	if opts.Note == "" {
		opts.Note = DefaultCommitNote
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var res model.CommitResult
	for _, row := range rows {
		if row.ReportedQuantity <= 0 {
			res.Skipped++
			continue
		}
		if opts.Limiter != nil {
			if err := opts.Limiter.Wait(ctx); err != nil {
				return res, ledgerErr("pace deduction", err)
			}
		}

		eventAt := row.Date
		if eventAt.IsZero() {
			eventAt = opts.Now().UTC()
		}
		d := model.Deduction{
			ProductID:  row.ProductID,
			Kind:       model.MovementVehicleConsumption,
			Quantity:   row.ReportedQuantity,
			Vehicle:    row.Vehicle,
			EventAt:    eventAt,
			PackageTag: opts.PackageTag,
			Note:       opts.Note,
		}

		res.Attempted++
		ok, msg, err := sink.ApplyDeduction(ctx, d)
		if err != nil {
			res.Errors = append(res.Errors, commitError(row, "outcome unknown: "+err.Error()))
			zap.L().Error("reconcile: commit aborted, ledger unreachable",
				zap.String("vehicle", row.Vehicle),
				zap.String("product_id", row.ProductID),
				zap.Int("succeeded", res.Succeeded),
				zap.Error(err),
			)
			return res, ledgerErr("apply deduction "+row.ProductID, err)
		}
		if !ok {
			if msg == "" {
				msg = "rejected"
			}
			res.Errors = append(res.Errors, commitError(row, msg))
			zap.L().Warn("reconcile: deduction rejected",
				zap.String("vehicle", row.Vehicle),
				zap.String("product_id", row.ProductID),
				zap.String("message", msg),
			)
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

func commitError(row model.ReconciledRow, msg string) model.CommitError {
	return model.CommitError{
		Vehicle:     row.Vehicle,
		ProductID:   row.ProductID,
		ProductName: row.ProductName,
		Message:     msg,
	}
}
