package embeddings

import (
	"fmt"
	"sort"
)

// EmbeddingModel names a dense text embedding model served by FastEmbed.
type EmbeddingModel string

// Text models supported by FastEmbed.
const (
	BGESmallENV15 EmbeddingModel = "fast-bge-small-en-v1.5"
	BGESmallEN    EmbeddingModel = "fast-bge-small-en"
	BGEBaseENV15  EmbeddingModel = "fast-bge-base-en-v1.5"
	BGEBaseEN     EmbeddingModel = "fast-bge-base-en"
	BGESmallZH    EmbeddingModel = "fast-bge-small-zh-v1.5"
	AllMiniLML6V2 EmbeddingModel = "fast-all-MiniLM-L6-v2"
)

// DefaultEmbeddingModel is used when no text model is configured.
const DefaultEmbeddingModel = BGESmallENV15

// ImageEmbeddingModel names an ONNX vision encoder.
type ImageEmbeddingModel string

// Image models available for download from Hugging Face.
const (
	ClipVitB32   ImageEmbeddingModel = "Qdrant/clip-ViT-B-32-vision"
	Resnet50     ImageEmbeddingModel = "Qdrant/resnet50-onnx"
	UnicomVitB16 ImageEmbeddingModel = "Qdrant/Unicom-ViT-B-16"
	UnicomVitB32 ImageEmbeddingModel = "Qdrant/Unicom-ViT-B-32"
)

// DefaultImageEmbeddingModel is used when no image model is configured.
const DefaultImageEmbeddingModel = ClipVitB32

// SparseModel names a sparse text embedding model.
type SparseModel string

// Sparse models. BGEM3 has no local export and needs a TEI server.
const (
	SPLADEPPV1 SparseModel = "prithivida/Splade_PP_en_v1"
	BGEM3      SparseModel = "BAAI/bge-m3"
)

// DefaultSparseModel is used when no sparse model is configured.
const DefaultSparseModel = SPLADEPPV1

// RerankerModel names a reranking model.
type RerankerModel string

// Reranker models. Cross-encoders run from their ONNX export unless a TEI
// endpoint is configured; LexicalReranker needs neither.
const (
	BGERerankerBase                RerankerModel = "BAAI/bge-reranker-base"
	BGERerankerV2M3                RerankerModel = "rozgo/bge-reranker-v2-m3"
	JINARerankerV1TurboEn          RerankerModel = "jinaai/jina-reranker-v1-turbo-en"
	JINARerankerV2BaseMultilingual RerankerModel = "jinaai/jina-reranker-v2-base-multilingual"
	LexicalReranker                RerankerModel = "lexical"
)

// DefaultRerankerModel is used when no reranker model is configured.
const DefaultRerankerModel = BGERerankerBase

// ModelInfo describes a registry entry.
type ModelInfo struct {
	Model       string `json:"model" yaml:"model"`
	Dim         int    `json:"dim" yaml:"dim"`
	Description string `json:"description" yaml:"description"`
}

// imageModelInfo carries what the ONNX image pipeline needs to fetch and
// preprocess inputs for a model.
type imageModelInfo struct {
	ModelInfo
	File       string
	InputName  string
	OutputName string
	ImageSize  int
	ResizeSize int
	Mean       [3]float32
	Std        [3]float32
}

var (
	clipMean     = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd      = [3]float32{0.26862954, 0.26130258, 0.27577711}
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

var textModels = map[EmbeddingModel]ModelInfo{
	BGESmallENV15: {Model: string(BGESmallENV15), Dim: 384, Description: "v1.5 release of the fast and default English model"},
	BGESmallEN:    {Model: string(BGESmallEN), Dim: 384, Description: "Fast English model"},
	BGEBaseENV15:  {Model: string(BGEBaseENV15), Dim: 768, Description: "v1.5 release of the base English model"},
	BGEBaseEN:     {Model: string(BGEBaseEN), Dim: 768, Description: "Base English model"},
	BGESmallZH:    {Model: string(BGESmallZH), Dim: 512, Description: "v1.5 release of the fast and default Chinese model"},
	AllMiniLML6V2: {Model: string(AllMiniLML6V2), Dim: 384, Description: "Sentence Transformer model, MiniLM-L6-v2"},
}

// textModelAliases maps Hugging Face names to FastEmbed model names.
var textModelAliases = map[string]EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 BGESmallENV15,
	"BAAI/bge-small-en":                      BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  BGEBaseENV15,
	"BAAI/bge-base-en":                       BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": AllMiniLML6V2,
}

var imageModels = map[ImageEmbeddingModel]imageModelInfo{
	ClipVitB32: {
		ModelInfo:  ModelInfo{Model: string(ClipVitB32), Dim: 512, Description: "CLIP vision encoder based on ViT-B/32"},
		File:       "model.onnx",
		InputName:  "pixel_values",
		OutputName: "image_embeds",
		ImageSize:  224,
		ResizeSize: 224,
		Mean:       clipMean,
		Std:        clipStd,
	},
	Resnet50: {
		ModelInfo:  ModelInfo{Model: string(Resnet50), Dim: 2048, Description: "ResNet-50 from Deep Residual Learning for Image Recognition"},
		File:       "model.onnx",
		InputName:  "input",
		OutputName: "output",
		ImageSize:  224,
		ResizeSize: 256,
		Mean:       imagenetMean,
		Std:        imagenetStd,
	},
	UnicomVitB16: {
		ModelInfo:  ModelInfo{Model: string(UnicomVitB16), Dim: 768, Description: "Unicom Unicom-ViT-B-16 from open-metric-learning"},
		File:       "model.onnx",
		InputName:  "input",
		OutputName: "output",
		ImageSize:  224,
		ResizeSize: 224,
		Mean:       clipMean,
		Std:        clipStd,
	},
	UnicomVitB32: {
		ModelInfo:  ModelInfo{Model: string(UnicomVitB32), Dim: 512, Description: "Unicom Unicom-ViT-B-32 from open-metric-learning"},
		File:       "model.onnx",
		InputName:  "input",
		OutputName: "output",
		ImageSize:  224,
		ResizeSize: 224,
		Mean:       clipMean,
		Std:        clipStd,
	},
}

// onnxSource locates a transformer ONNX export and its tokenizer files on the
// Hugging Face hub. The tokenizer files sit at the repo root.
type onnxSource struct {
	Repo string
	File string
}

// tokenModelInfo is a sparse or reranker registry entry.
type tokenModelInfo struct {
	ModelInfo

	// Source is nil for models without a local export; those need a TEI
	// endpoint.
	Source *onnxSource

	// ServerIDs are the model ids a TEI server may report for this model,
	// besides the registry name.
	ServerIDs []string
}

var sparseModels = map[SparseModel]tokenModelInfo{
	SPLADEPPV1: {
		ModelInfo: ModelInfo{Model: string(SPLADEPPV1), Dim: 30522, Description: "Splade sparse vector model for commercial use, v1"},
		Source:    &onnxSource{Repo: "Qdrant/SPLADE_PP_en_v1", File: "model.onnx"},
		ServerIDs: []string{"Qdrant/SPLADE_PP_en_v1"},
	},
	BGEM3: {
		ModelInfo: ModelInfo{Model: string(BGEM3), Dim: 250002, Description: "BGE-M3 sparse lexical weights, multilingual (TEI only)"},
	},
}

var rerankerModels = map[RerankerModel]tokenModelInfo{
	BGERerankerBase: {
		ModelInfo: ModelInfo{Model: string(BGERerankerBase), Description: "reranker model for English and Chinese"},
		Source:    &onnxSource{Repo: "BAAI/bge-reranker-base", File: "onnx/model.onnx"},
	},
	BGERerankerV2M3: {
		ModelInfo: ModelInfo{Model: string(BGERerankerV2M3), Description: "reranker model for multilingual"},
		Source:    &onnxSource{Repo: "rozgo/bge-reranker-v2-m3", File: "model.onnx"},
		ServerIDs: []string{"BAAI/bge-reranker-v2-m3"},
	},
	JINARerankerV1TurboEn: {
		ModelInfo: ModelInfo{Model: string(JINARerankerV1TurboEn), Description: "reranker model for English"},
		Source:    &onnxSource{Repo: "jinaai/jina-reranker-v1-turbo-en", File: "onnx/model.onnx"},
	},
	JINARerankerV2BaseMultilingual: {
		ModelInfo: ModelInfo{Model: string(JINARerankerV2BaseMultilingual), Description: "reranker model for multilingual"},
		Source:    &onnxSource{Repo: "jinaai/jina-reranker-v2-base-multilingual", File: "onnx/model.onnx"},
	},
	LexicalReranker: {
		ModelInfo: ModelInfo{Model: string(LexicalReranker), Description: "in-process term overlap reranker, no model download"},
	},
}

// sparseEntry returns the registry entry of a resolved model, failing when
// the model has no local export and no endpoint is set.
func sparseEntry(model SparseModel, remote RemoteOptions) (tokenModelInfo, error) {
	entry := sparseModels[model]
	if entry.Source == nil && remote.Endpoint == "" {
		return entry, fmt.Errorf("%w: sparse model %q is served only by TEI; set an endpoint", ErrInvalidConfig, model)
	}
	return entry, nil
}

// rerankerEntry is sparseEntry for rerankers. LexicalReranker runs anywhere.
func rerankerEntry(model RerankerModel, remote RemoteOptions) (tokenModelInfo, error) {
	entry := rerankerModels[model]
	if model != LexicalReranker && entry.Source == nil && remote.Endpoint == "" {
		return entry, fmt.Errorf("%w: reranker model %q is served only by TEI; set an endpoint", ErrInvalidConfig, model)
	}
	return entry, nil
}

// serverIDs returns every id a TEI server may report for e.
func (e tokenModelInfo) serverIDs() []string {
	return append([]string{e.Model}, e.ServerIDs...)
}

// LookupTextModel resolves a FastEmbed model name or Hugging Face alias.
func LookupTextModel(name string) (EmbeddingModel, ModelInfo, error) {
	if name == "" {
		name = string(DefaultEmbeddingModel)
	}
	model := EmbeddingModel(name)
	if alias, ok := textModelAliases[name]; ok {
		model = alias
	}
	info, ok := textModels[model]
	if !ok {
		return "", ModelInfo{}, fmt.Errorf("%w: text model %q", ErrModelNotFound, name)
	}
	return model, info, nil
}

// LookupImageModel resolves an image model name.
func LookupImageModel(name string) (ImageEmbeddingModel, ModelInfo, error) {
	if name == "" {
		name = string(DefaultImageEmbeddingModel)
	}
	info, ok := imageModels[ImageEmbeddingModel(name)]
	if !ok {
		return "", ModelInfo{}, fmt.Errorf("%w: image model %q", ErrModelNotFound, name)
	}
	return ImageEmbeddingModel(name), info.ModelInfo, nil
}

// LookupSparseModel resolves a sparse model name.
func LookupSparseModel(name string) (SparseModel, ModelInfo, error) {
	if name == "" {
		name = string(DefaultSparseModel)
	}
	entry, ok := sparseModels[SparseModel(name)]
	if !ok {
		return "", ModelInfo{}, fmt.Errorf("%w: sparse model %q", ErrModelNotFound, name)
	}
	return SparseModel(name), entry.ModelInfo, nil
}

// LookupRerankerModel resolves a reranker model name.
func LookupRerankerModel(name string) (RerankerModel, ModelInfo, error) {
	if name == "" {
		name = string(DefaultRerankerModel)
	}
	entry, ok := rerankerModels[RerankerModel(name)]
	if !ok {
		return "", ModelInfo{}, fmt.Errorf("%w: reranker model %q", ErrModelNotFound, name)
	}
	return RerankerModel(name), entry.ModelInfo, nil
}

// ListTextModels returns the text registry sorted by name.
func ListTextModels() []ModelInfo {
	out := make([]ModelInfo, 0, len(textModels))
	for _, info := range textModels {
		out = append(out, info)
	}
	return sortInfos(out)
}

// ListImageModels returns the image registry sorted by name.
func ListImageModels() []ModelInfo {
	out := make([]ModelInfo, 0, len(imageModels))
	for _, info := range imageModels {
		out = append(out, info.ModelInfo)
	}
	return sortInfos(out)
}

// ListSparseModels returns the sparse registry sorted by name.
func ListSparseModels() []ModelInfo {
	out := make([]ModelInfo, 0, len(sparseModels))
	for _, entry := range sparseModels {
		out = append(out, entry.ModelInfo)
	}
	return sortInfos(out)
}

// ListRerankerModels returns the reranker registry sorted by name.
func ListRerankerModels() []ModelInfo {
	out := make([]ModelInfo, 0, len(rerankerModels))
	for _, entry := range rerankerModels {
		out = append(out, entry.ModelInfo)
	}
	return sortInfos(out)
}

func sortInfos(infos []ModelInfo) []ModelInfo {
	sort.Slice(infos, func(i, j int) bool { return infos[i].Model < infos[j].Model })
	return infos
}
