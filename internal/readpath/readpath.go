// Package readpath implements C8: the read orchestrator that branches on
// search_switch, optionally classifies the incoming message, drives C7
// retrieval plus the Retrieve-Summary LLM prompt, and persists a
// short-term memory row. Grounded on internal/orchestrator/handler.go's
// envelope-dispatch control flow (classify -> branch -> respond) and
// agentic_memory.go's numbered-step ingestion style, adapted here to a
// read path.
package readpath

import (
	"context"

	"github.com/memorybear/memoryengine/internal/graphstore"
	"github.com/memorybear/memoryengine/internal/ingest"
	"github.com/memorybear/memoryengine/internal/merrors"
	"github.com/memorybear/memoryengine/internal/provider"
	"github.com/memorybear/memoryengine/internal/retrieve"
)

// InsufficientEvidence is the exact sentinel the Retrieve-Summary prompt
// must return when the retrieved content cannot answer the sub-query
// (§4.8 step 3).
const InsufficientEvidence = "信息不足，无法回答。"

// SearchSwitch selects the read orchestrator's branch (§4.8).
type SearchSwitch string

const (
	SwitchClassify    SearchSwitch = "0"
	SwitchRetrieve    SearchSwitch = "1"
	SwitchDirectReply SearchSwitch = "2"
)

// Classification is the LLM's triage of the message when SwitchClassify
// is used.
type Classification string

const (
	ClassificationRead     Classification = "read"
	ClassificationWrite    Classification = "write"
	ClassificationChitChat Classification = "chit-chat"
)

// Message is one turn of conversational history.
type Message struct {
	Role    string
	Content string
}

// ShortTermStore persists the {message, answer, retrieved_content}
// triple keyed by end_user_id (§4.8 step 4).
type ShortTermStore interface {
	Save(ctx context.Context, endUserID, message, answer string, retrievedContent any) error
}

// Request is one read-orchestrator call (§4.8).
type Request struct {
	EndUserID    string
	Message      string
	History      []Message
	SearchSwitch SearchSwitch
	LLMModelRef  string
}

// Response is the read orchestrator's result.
type Response struct {
	Answer               string
	Classification       Classification
	RetrievedContent     map[graphstore.Category]retrieve.CategoryResult
	ShortTermMemorySaved bool
}

// ReadPath drives C8.
type ReadPath struct {
	llm       provider.Provider
	retriever *retrieve.Retriever
	ingestor  *ingest.Pipeline
	shortTerm ShortTermStore
}

// New builds a ReadPath.
func New(llm provider.Provider, retriever *retrieve.Retriever, ingestor *ingest.Pipeline, shortTerm ShortTermStore) *ReadPath {
	return &ReadPath{llm: llm, retriever: retriever, ingestor: ingestor, shortTerm: shortTerm}
}

// Handle runs the §4.8 branches.
func (rp *ReadPath) Handle(ctx context.Context, req Request) (Response, error) {
	switch req.SearchSwitch {
	case SwitchDirectReply:
		answer, err := rp.directReply(ctx, req)
		if err != nil {
			return Response{}, err
		}
		return Response{Answer: answer}, nil

	case SwitchRetrieve:
		return rp.retrieveAndSummarize(ctx, req, "")

	default: // SwitchClassify, and any other value defaults to classification
		classification, err := rp.classify(ctx, req)
		if err != nil {
			return Response{}, err
		}
		return rp.dispatch(ctx, req, classification)
	}
}

func (rp *ReadPath) dispatch(ctx context.Context, req Request, classification Classification) (Response, error) {
	switch classification {
	case ClassificationWrite:
		if rp.ingestor != nil {
			if _, err := rp.ingestor.Run(ctx, ingest.Request{
				EndUserID: req.EndUserID,
				Messages:  []ingest.Message{{Role: "user", Content: req.Message}},
			}); err != nil {
				return Response{}, err
			}
		}
		answer, err := rp.directReply(ctx, req)
		if err != nil {
			return Response{}, err
		}
		resp := Response{Answer: answer, Classification: classification}
		rp.saveShortTerm(ctx, req, &resp, nil)
		return resp, nil

	case ClassificationChitChat:
		answer, err := rp.directReply(ctx, req)
		if err != nil {
			return Response{}, err
		}
		resp := Response{Answer: answer, Classification: classification}
		rp.saveShortTerm(ctx, req, &resp, nil)
		return resp, nil

	default: // ClassificationRead
		resp, err := rp.retrieveAndSummarize(ctx, req, classification)
		return resp, err
	}
}

func (rp *ReadPath) directReply(ctx context.Context, req Request) (string, error) {
	messages := make([]provider.Message, 0, len(req.History)+1)
	for _, h := range req.History {
		messages = append(messages, provider.Message{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, provider.Message{Role: "user", Content: req.Message})

	result, err := rp.llm.Chat(ctx, req.LLMModelRef, messages, provider.ChatOptions{})
	if err != nil {
		return "", merrors.New(merrors.LLMCallFailed, "readpath.directReply", err)
	}
	return result.Text, nil
}

func (rp *ReadPath) saveShortTerm(ctx context.Context, req Request, resp *Response, retrieved map[graphstore.Category]retrieve.CategoryResult) {
	if rp.shortTerm == nil || req.SearchSwitch == SwitchDirectReply || resp.Answer == InsufficientEvidence {
		return
	}
	if err := rp.shortTerm.Save(ctx, req.EndUserID, req.Message, resp.Answer, retrieved); err == nil {
		resp.ShortTermMemorySaved = true
	}
}
