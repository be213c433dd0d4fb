package support

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssupport "github.com/aws/aws-sdk-go-v2/service/support"
	"github.com/aws/aws-sdk-go-v2/service/support/types"
	"github.com/justeat/JustSupport/internal/config"
	"github.com/justeat/JustSupport/internal/trigger"
)

// fakeSupport pages cases and communications using MaxResults and an
// index-valued NextToken, like the real API's opaque token.
type fakeSupport struct {
	mu          sync.Mutex
	cases       []types.CaseDetails
	comms       map[string][]types.Communication // newest first
	failComms   map[string]bool
	failCases   bool
	caseCalls   int
	commCalls   int
	replies     []string
	replyResult bool
	replyErr    error
}

func newFakeSupport() *fakeSupport {
	return &fakeSupport{comms: make(map[string][]types.Communication), failComms: make(map[string]bool), replyResult: true}
}

func (f *fakeSupport) addCase(caseID, displayID, subject string, newestFirst ...string) {
	f.cases = append(f.cases, types.CaseDetails{
		CaseId:    aws.String(caseID),
		DisplayId: aws.String(displayID),
		Subject:   aws.String(subject),
	})
	n := len(newestFirst)
	for i, body := range newestFirst {
		// newest has the latest timestamp
		ts := "2024-03-01T10:" + twoDigits(n-i) + ":00.000Z"
		f.comms[caseID] = append(f.comms[caseID], types.Communication{
			CaseId:      aws.String(caseID),
			Body:        aws.String(body),
			TimeCreated: aws.String(ts),
			SubmittedBy: aws.String("someone@example.com"),
		})
	}
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func page(token *string, size int32, total int) (start, end int, next *string) {
	if token != nil {
		start, _ = strconv.Atoi(*token)
	}
	end = start + int(size)
	if size <= 0 || end > total {
		end = total
	}
	if end < total {
		next = aws.String(strconv.Itoa(end))
	}
	return start, end, next
}

func (f *fakeSupport) DescribeCases(_ context.Context, in *awssupport.DescribeCasesInput, _ ...func(*awssupport.Options)) (*awssupport.DescribeCasesOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.caseCalls++
	if f.failCases {
		return nil, errors.New("AccessDenied")
	}
	start, end, next := page(in.NextToken, aws.ToInt32(in.MaxResults), len(f.cases))
	return &awssupport.DescribeCasesOutput{Cases: f.cases[start:end], NextToken: next}, nil
}

func (f *fakeSupport) DescribeCommunications(_ context.Context, in *awssupport.DescribeCommunicationsInput, _ ...func(*awssupport.Options)) (*awssupport.DescribeCommunicationsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commCalls++
	caseID := aws.ToString(in.CaseId)
	if f.failComms[caseID] {
		return nil, errors.New("throttled")
	}
	all := f.comms[caseID]
	start, end, next := page(in.NextToken, aws.ToInt32(in.MaxResults), len(all))
	return &awssupport.DescribeCommunicationsOutput{Communications: all[start:end], NextToken: next}, nil
}

func (f *fakeSupport) AddCommunicationToCase(_ context.Context, in *awssupport.AddCommunicationToCaseInput, _ ...func(*awssupport.Options)) (*awssupport.AddCommunicationToCaseOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return nil, f.replyErr
	}
	f.replies = append(f.replies, aws.ToString(in.CaseId)+": "+aws.ToString(in.CommunicationBody))
	return &awssupport.AddCommunicationToCaseOutput{Result: f.replyResult}, nil
}

// fakeFactory hands out one fake per role ARN.
type fakeFactory struct {
	byARN map[string]*fakeSupport
}

func (f *fakeFactory) ForAccount(_ context.Context, account config.Account) (API, error) {
	api, ok := f.byARN[account.ARN]
	if !ok {
		return nil, errors.New("assume role failed")
	}
	return api, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []trigger.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt trigger.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}
