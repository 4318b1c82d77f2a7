//go:build onnx

package memsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig configures the ONNX embedder.
type ONNXConfig struct {
	// ModelPath points at the ONNX model file (e.g. all-MiniLM-L6-v2).
	ModelPath string

	// TokenizerPath points at the HuggingFace tokenizer.json.
	TokenizerPath string

	// LibraryPath is the onnxruntime shared library location.
	LibraryPath string

	// Dimensions is the embedding size. Default: 384.
	Dimensions int

	// MaxSequenceLength caps tokenized input. Default: 128.
	MaxSequenceLength int
}

// ONNXEmbedder runs a sentence-transformer model through ONNX Runtime
// and mean-pools the hidden states into a normalized embedding.
type ONNXEmbedder struct {
	session    *ort.DynamicAdvancedSession
	vocab      map[string]int
	dimensions int
	maxSeq     int
}

const (
	bertCLS = 101
	bertSEP = 102
	bertUNK = 100
)

// NewONNXEmbedder loads the model and tokenizer and prepares a session.
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("memsvc: onnx model path is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("memsvc: tokenizer path is required")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 384
	}
	if cfg.MaxSequenceLength <= 0 {
		cfg.MaxSequenceLength = 128
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("memsvc: initialize onnx runtime: %w", err)
	}

	vocab, err := loadVocab(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("memsvc: load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("memsvc: create onnx session: %w", err)
	}

	return &ONNXEmbedder{
		session:    session,
		vocab:      vocab,
		dimensions: cfg.Dimensions,
		maxSeq:     cfg.MaxSequenceLength,
	}, nil
}

// Embed tokenizes the text, runs inference, and mean-pools attended
// positions into a unit vector.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	tokens := e.tokenize(text)

	inputIDs := make([]int64, e.maxSeq)
	attentionMask := make([]int64, e.maxSeq)
	tokenTypeIDs := make([]int64, e.maxSeq)

	inputIDs[0] = bertCLS
	attentionMask[0] = 1

	n := len(tokens)
	if n > e.maxSeq-2 {
		n = e.maxSeq - 2
	}
	for i := 0; i < n; i++ {
		inputIDs[i+1] = tokens[i]
		attentionMask[i+1] = 1
	}
	inputIDs[n+1] = bertSEP
	attentionMask[n+1] = 1

	shape := ort.NewShape(1, int64(e.maxSeq))
	idsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("memsvc: input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("memsvc: attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typeTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("memsvc: token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{idsTensor, maskTensor, typeTensor}, outputs); err != nil {
		return nil, fmt.Errorf("memsvc: onnx inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("memsvc: unexpected output tensor type")
	}

	data := tensor.GetData()
	dims := tensor.GetShape()
	if len(dims) != 3 || dims[2] != int64(e.dimensions) {
		return nil, fmt.Errorf("memsvc: unexpected output shape %v", dims)
	}

	seqLen := int(dims[1])
	embedding := make([]float32, e.dimensions)
	attended := float32(0)
	for i := 0; i < seqLen; i++ {
		if attentionMask[i] == 0 {
			continue
		}
		attended++
		offset := i * e.dimensions
		for j := 0; j < e.dimensions; j++ {
			embedding[j] += data[offset+j]
		}
	}
	if attended > 0 {
		for j := range embedding {
			embedding[j] /= attended
		}
	}

	var sumSquares float64
	for _, v := range embedding {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		scale := float32(1 / math.Sqrt(sumSquares))
		for j := range embedding {
			embedding[j] *= scale
		}
	}
	return embedding, nil
}

// Dimensions returns the embedding vector size.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases the ONNX session.
func (e *ONNXEmbedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

// tokenize applies lowercase WordPiece tokenization against the
// loaded vocabulary.
func (e *ONNXEmbedder) tokenize(text string) []int64 {
	var tokens []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if id, ok := e.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		tokens = append(tokens, e.wordPiece(word)...)
	}
	return tokens
}

// wordPiece splits an out-of-vocabulary word into the longest matching
// subwords, with the ## continuation prefix.
func (e *ONNXEmbedder) wordPiece(word string) []int64 {
	var tokens []int64
	start := 0
	for start < len(word) {
		matched := false
		for end := len(word); end > start; end-- {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := e.vocab[sub]; ok {
				tokens = append(tokens, int64(id))
				start = end
				matched = true
				break
			}
		}
		if !matched {
			tokens = append(tokens, bertUNK)
			start++
		}
	}
	return tokens
}

// loadVocab reads the vocabulary out of a HuggingFace tokenizer.json.
func loadVocab(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	return parsed.Model.Vocab, nil
}
