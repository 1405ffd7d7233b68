package rerank

import "strings"

// pairTokenizer produces BERT-style inputs for a query-document pair:
// [CLS] query tokens [SEP] document tokens [SEP], with token_type_ids 0 for
// the query segment and 1 for the document segment. Token IDs are hash-based,
// matching models exported with a hashing vocabulary.
type pairTokenizer struct{}

func (t *pairTokenizer) TokenizePair(query, document string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = 101 // [CLS]
	attentionMask[0] = 1
	pos := 1

	for _, word := range splitWords(query) {
		if pos >= maxTokens-2 {
			break
		}
		inputIDs[pos] = tokenID(word)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = 102 // [SEP]
		attentionMask[pos] = 1
		pos++
	}
	for _, word := range splitWords(document) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = tokenID(word)
		attentionMask[pos] = 1
		tokenTypeIDs[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = 102 // [SEP]
		attentionMask[pos] = 1
		tokenTypeIDs[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

func splitWords(text string) []string {
	return strings.Fields(text)
}

func tokenID(word string) int64 {
	h := 0
	for _, c := range word {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return int64(h % 30000)
}
