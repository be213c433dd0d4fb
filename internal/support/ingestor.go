package support

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssupport "github.com/aws/aws-sdk-go-v2/service/support"
	"github.com/aws/aws-sdk-go-v2/service/support/types"
	"github.com/justeat/JustSupport/internal/config"
	"github.com/justeat/JustSupport/internal/ledger"
	"github.com/justeat/JustSupport/internal/pkg/logger"
	"github.com/justeat/JustSupport/internal/trigger"
	"golang.org/x/sync/errgroup"
)

// Report summarizes one ingestion run.
type Report struct {
	Accounts   int `json:"accounts"`
	Cases      int `json:"cases"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Failures   int `json:"failures"`
}

func (r *Report) add(o Report) {
	r.Accounts += o.Accounts
	r.Cases += o.Cases
	r.Inserted += o.Inserted
	r.Duplicates += o.Duplicates
	r.Failures += o.Failures
}

// Ingestor copies recent communications of every account's cases into the
// ledger and signals completion once all accounts are done.
type Ingestor struct {
	clients   ClientFactory
	store     ledger.Store
	publisher trigger.Publisher
	accounts  []config.Account
	cfg       config.IngestConfig
	now       func() time.Time
}

func NewIngestor(clients ClientFactory, store ledger.Store, publisher trigger.Publisher, accounts []config.Account, cfg config.IngestConfig) *Ingestor {
	return &Ingestor{
		clients:   clients,
		store:     store,
		publisher: publisher,
		accounts:  accounts,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Run ingests every account, waits for all of them and then publishes the
// completion event. Per-account failures are logged and counted; only a
// failed publish is returned as an error.
func (in *Ingestor) Run(ctx context.Context) (Report, error) {
	after := in.now().Add(-in.cfg.Lookback())

	var (
		mu     sync.Mutex
		report Report
		g      errgroup.Group
	)
	if in.cfg.Concurrency > 0 {
		g.SetLimit(in.cfg.Concurrency)
	}

	for _, account := range in.accounts {
		g.Go(func() error {
			r := in.ingestAccount(ctx, account, after)
			mu.Lock()
			report.add(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("ingestion finished",
		"accounts", report.Accounts, "cases", report.Cases,
		"inserted", report.Inserted, "duplicates", report.Duplicates, "failures", report.Failures)

	if in.publisher == nil {
		return report, nil
	}
	if err := in.publisher.Publish(ctx, trigger.NewIngestionComplete()); err != nil {
		return report, fmt.Errorf("publishing completion: %w", err)
	}
	return report, nil
}

func (in *Ingestor) ingestAccount(ctx context.Context, account config.Account, after time.Time) Report {
	report := Report{Accounts: 1}
	log := logger.With("account", account.Name)
	log.Info("getting cases for account")

	api, err := in.clients.ForAccount(ctx, account)
	if err != nil {
		log.Error("support client unavailable", "error", err)
		report.Failures++
		return report
	}

	input := &awssupport.DescribeCasesInput{
		AfterTime:             aws.String(ledger.FormatTime(after)),
		IncludeCommunications: aws.Bool(true),
		IncludeResolvedCases:  true,
		MaxResults:            aws.Int32(int32(in.cfg.CasePageSize)),
	}
	for {
		out, err := api.DescribeCases(ctx, input)
		if err != nil {
			log.Error("listing cases failed", "error", err, "code", errorCode(err))
			report.Failures++
			return report
		}

		for _, c := range out.Cases {
			report.Cases++
			report.add(in.ingestCase(ctx, api, c))
		}

		if aws.ToString(out.NextToken) == "" {
			return report
		}
		input.NextToken = out.NextToken
	}
}

// ingestCase reads every communication page before writing, because AWS
// returns them newest first across pages and sort orders count from the
// oldest one.
func (in *Ingestor) ingestCase(ctx context.Context, api API, c types.CaseDetails) Report {
	var report Report
	caseID := aws.ToString(c.CaseId)

	comms, err := in.fetchCommunications(ctx, api, caseID)
	if err != nil {
		logger.Error("listing communications failed", "case_id", caseID, "error", err, "code", errorCode(err))
		report.Failures++
		return report
	}

	for _, rec := range BuildRecords(c, comms) {
		err := in.store.PutIfAbsent(ctx, rec)
		switch {
		case err == nil:
			report.Inserted++
			logger.Debug("communication stored", "communication_id", rec.CommunicationID, "display_id", rec.DisplayID)
		case errors.Is(err, ledger.ErrExists):
			report.Duplicates++
			logger.Info("communication already stored", "communication_id", rec.CommunicationID, "display_id", rec.DisplayID)
		default:
			report.Failures++
			logger.Error("storing communication failed", "communication_id", rec.CommunicationID, "error", err)
		}
	}
	return report
}

func (in *Ingestor) fetchCommunications(ctx context.Context, api API, caseID string) ([]types.Communication, error) {
	input := &awssupport.DescribeCommunicationsInput{
		CaseId:     aws.String(caseID),
		MaxResults: aws.Int32(int32(in.cfg.CommunicationPageSize)),
	}
	var all []types.Communication
	for {
		out, err := api.DescribeCommunications(ctx, input)
		if err != nil {
			return nil, err
		}
		all = append(all, out.Communications...)
		if aws.ToString(out.NextToken) == "" {
			return all, nil
		}
		input.NextToken = out.NextToken
	}
}

// BuildRecords turns a case's communications, newest first as AWS returns
// them, into pending ledger records numbered from the oldest.
func BuildRecords(c types.CaseDetails, newestFirst []types.Communication) []ledger.Record {
	caseID := aws.ToString(c.CaseId)
	records := make([]ledger.Record, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		comm := newestFirst[i]
		sortOrder := len(records)
		records = append(records, ledger.Record{
			CommunicationID: ledger.CommunicationID(caseID, sortOrder),
			CaseID:          caseID,
			DisplayID:       aws.ToString(c.DisplayId),
			Subject:         aws.ToString(c.Subject),
			Body:            aws.ToString(comm.Body),
			SubmittedBy:     aws.ToString(comm.SubmittedBy),
			TimeCreated:     aws.ToString(comm.TimeCreated),
			SortOrder:       sortOrder,
			SyncFlag:        ledger.Pending,
		})
	}
	return records
}
