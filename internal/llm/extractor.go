package llm

import (
	"context"
	"fmt"

	"github.com/agenthands/strata/internal/core/model"
)

const extractionPrompt = `Extract the entities and relationships stated in the following document.

Return a JSON object:
{
  "entities": [
    {"name": "...", "type": "...", "description": "...", "confidence": 0.0}
  ],
  "relationships": [
    {"source_name": "...", "target_name": "...", "type": "...", "description": "...", "confidence": 0.0}
  ]
}

Rules:
- "type" is a short tag such as "Disease", "Drug", "Table", "Concept".
- Relationship "type" is an upper-snake verb such as TREATS, HAS_COLUMN, APPLICABLE_TO.
- "confidence" is your certainty in [0,1] that the document states this.
- Only extract what the document states. Never invent entities to complete a relationship.

<DOCUMENT>
%s
</DOCUMENT>`

// Extractor turns raw document text into entity and relationship drafts. It
// sits upstream of the deterministic core; its output is validated by the
// resolver before anything is persisted.
type Extractor struct {
	LLM LLMClient
}

func NewExtractor(llmClient LLMClient) *Extractor {
	return &Extractor{LLM: llmClient}
}

func (e *Extractor) Extract(ctx context.Context, documentID, content string) (*model.ExtractedDrafts, error) {
	response, err := e.LLM.Generate(ctx, fmt.Sprintf(extractionPrompt, content))
	if err != nil {
		return nil, fmt.Errorf("failed to generate extraction: %w", err)
	}

	drafts, err := ParseJSON[model.ExtractedDrafts](response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse extraction: %w", err)
	}

	for i := range drafts.Entities {
		drafts.Entities[i].SourceDocument = documentID
	}
	return &drafts, nil
}
