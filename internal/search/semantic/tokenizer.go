package semantic

import (
	"strings"
	"unicode"
)

// Special tokens a BERT-style vocabulary is expected to carry.
const (
	tokenPAD = "[PAD]"
	tokenUNK = "[UNK]"
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"
)

// maxSequenceLength is the fixed token-id sequence length every Encode
// call produces, matching §4.7's "truncate to 512 tokens, reserving two
// for [CLS]/[SEP], pad the remainder".
const maxSequenceLength = 512

// Vocab is a BERT-style WordPiece vocabulary used to turn note and query
// text into the token-id sequence an Embedder pools over.
type Vocab struct {
	tokenToID                      map[string]int32
	padID, unkID, clsID, sepID int32
}

// NewVocab builds a Vocab from an ordered token list, where a token's
// position is its id (the same convention vocab.txt files use).
func NewVocab(tokens []string) *Vocab {
	v := &Vocab{tokenToID: make(map[string]int32, len(tokens))}
	for i, t := range tokens {
		v.tokenToID[t] = int32(i)
	}
	v.padID = v.lookupOr(tokenPAD, 0)
	v.unkID = v.lookupOr(tokenUNK, 0)
	v.clsID = v.lookupOr(tokenCLS, 0)
	v.sepID = v.lookupOr(tokenSEP, 0)
	return v
}

func (v *Vocab) lookupOr(tok string, def int32) int32 {
	if id, ok := v.tokenToID[tok]; ok {
		return id
	}
	return def
}

// Encode normalises and WordPiece-tokenises text, returning a fixed-length
// token-id sequence bracketed with [CLS]/[SEP] and an attention mask
// marking the non-padding positions.
func (v *Vocab) Encode(text string) (ids, mask []int32) {
	var pieces []int32
	for _, w := range basicTokenize(text) {
		pieces = append(pieces, v.wordPiece(w)...)
	}
	if len(pieces) > maxSequenceLength-2 {
		pieces = pieces[:maxSequenceLength-2]
	}

	ids = make([]int32, maxSequenceLength)
	mask = make([]int32, maxSequenceLength)

	ids[0] = v.clsID
	mask[0] = 1
	i := 1
	for _, p := range pieces {
		ids[i] = p
		mask[i] = 1
		i++
	}
	ids[i] = v.sepID
	mask[i] = 1
	// Remaining positions stay at their zero value: padID's usual id (0
	// in every vocab.txt this package has seen) and mask 0.
	return ids, mask
}

// basicTokenize lowercases text and splits on runs of non-letter,
// non-digit characters, the pre-tokenisation step WordPiece assumes has
// already happened.
func basicTokenize(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return words
}

// wordPiece greedily matches the longest vocabulary entry starting at
// each position of word, prefixing continuation pieces with "##" as
// BERT's WordPiece algorithm does. If any position has no match at all,
// the whole word maps to a single [UNK].
func (v *Vocab) wordPiece(word string) []int32 {
	runes := []rune(word)
	var out []int32
	start := 0
	for start < len(runes) {
		end := len(runes)
		matched := int32(-1)
		for end > start {
			candidate := string(runes[start:end])
			if start > 0 {
				candidate = "##" + candidate
			}
			if id, ok := v.tokenToID[candidate]; ok {
				matched = id
				break
			}
			end--
		}
		if matched == -1 {
			return []int32{v.unkID}
		}
		out = append(out, matched)
		start = end
	}
	return out
}
