package embedding

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/anthonynsimon/bild/transform"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	clipImageSize    = 224
	clipEmbeddingDim = 512
	clipThreads      = 4
)

// CLIP normalization constants
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Config locates the ONNX runtime and the exported CLIP encoders
type Config struct {
	LibraryPath     string `yaml:"library_path"`
	TextModelPath   string `yaml:"text_model"`
	VisionModelPath string `yaml:"vision_model"`
	TokenizerPath   string `yaml:"tokenizer"`
}

var (
	ortOnce sync.Once
	ortErr  error
)

func initRuntime(libraryPath string) error {
	ortOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// CLIPModel runs the CLIP ViT-B/32 text and vision encoders. The sessions are
// bound to fixed input tensors, so calls are serialized.
type CLIPModel struct {
	mu            sync.Mutex
	textSession   *ort.AdvancedSession
	visionSession *ort.AdvancedSession
	tokenizer     *CLIPTokenizer
	textInput     *ort.Tensor[int64]
	textOutput    *ort.Tensor[float32]
	visionInput   *ort.Tensor[float32]
	visionOutput  *ort.Tensor[float32]
}

// NewCLIPModel loads the tokenizer and both encoder sessions.
func NewCLIPModel(cfg Config) (*CLIPModel, error) {
	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	tokenizer, err := LoadCLIPTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	m := &CLIPModel{tokenizer: tokenizer}
	if err := m.openText(cfg.TextModelPath); err != nil {
		m.Close()
		return nil, err
	}
	if err := m.openVision(cfg.VisionModelPath); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func (c *CLIPModel) openText(path string) error {
	var err error
	if c.textInput, err = ort.NewEmptyTensor[int64](ort.NewShape(1, clipContextLength)); err != nil {
		return fmt.Errorf("failed to create text input tensor: %w", err)
	}
	if c.textOutput, err = ort.NewEmptyTensor[float32](ort.NewShape(1, clipEmbeddingDim)); err != nil {
		return fmt.Errorf("failed to create text output tensor: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(clipThreads); err != nil {
		return fmt.Errorf("failed to set thread count: %w", err)
	}

	c.textSession, err = ort.NewAdvancedSession(path,
		[]string{"input_ids"},
		[]string{"text_embeds"},
		[]ort.Value{c.textInput},
		[]ort.Value{c.textOutput},
		opts)
	if err != nil {
		return fmt.Errorf("failed to create text session: %w", err)
	}
	return nil
}

func (c *CLIPModel) openVision(path string) error {
	var err error
	if c.visionInput, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, clipImageSize, clipImageSize)); err != nil {
		return fmt.Errorf("failed to create vision input tensor: %w", err)
	}
	if c.visionOutput, err = ort.NewEmptyTensor[float32](ort.NewShape(1, clipEmbeddingDim)); err != nil {
		return fmt.Errorf("failed to create vision output tensor: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(clipThreads); err != nil {
		return fmt.Errorf("failed to set thread count: %w", err)
	}

	c.visionSession, err = ort.NewAdvancedSession(path,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.Value{c.visionInput},
		[]ort.Value{c.visionOutput},
		opts)
	if err != nil {
		return fmt.Errorf("failed to create vision session: %w", err)
	}
	return nil
}

// Close releases the sessions and tensors
func (c *CLIPModel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.textSession != nil {
		c.textSession.Destroy()
		c.textSession = nil
	}
	if c.visionSession != nil {
		c.visionSession.Destroy()
		c.visionSession = nil
	}
	if c.textInput != nil {
		c.textInput.Destroy()
		c.textInput = nil
	}
	if c.textOutput != nil {
		c.textOutput.Destroy()
		c.textOutput = nil
	}
	if c.visionInput != nil {
		c.visionInput.Destroy()
		c.visionInput = nil
	}
	if c.visionOutput != nil {
		c.visionOutput.Destroy()
		c.visionOutput = nil
	}
	return nil
}

// EncodeText embeds a prompt as a unit vector
func (c *CLIPModel) EncodeText(text string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.textSession == nil {
		return nil, fmt.Errorf("text encoder closed")
	}

	tokens := c.tokenizer.Encode(text)
	input := c.textInput.GetData()
	for i := range input {
		input[i] = 0
		if i < len(tokens) {
			input[i] = int64(tokens[i])
		}
	}

	if err := c.textSession.Run(); err != nil {
		return nil, fmt.Errorf("failed to run text inference: %w", err)
	}
	out := make([]float32, clipEmbeddingDim)
	copy(out, c.textOutput.GetData())
	return normalize(out), nil
}

// EncodeImage embeds an image as a unit vector
func (c *CLIPModel) EncodeImage(img image.Image) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.visionSession == nil {
		return nil, fmt.Errorf("vision encoder closed")
	}

	copy(c.visionInput.GetData(), pixelValues(img))
	if err := c.visionSession.Run(); err != nil {
		return nil, fmt.Errorf("failed to run vision inference: %w", err)
	}
	out := make([]float32, clipEmbeddingDim)
	copy(out, c.visionOutput.GetData())
	return normalize(out), nil
}

// pixelValues resizes img to 224x224 and returns the normalized CHW tensor.
func pixelValues(img image.Image) []float32 {
	resized := transform.Resize(img, clipImageSize, clipImageSize, transform.CatmullRom)

	const plane = clipImageSize * clipImageSize
	tensor := make([]float32, 3*plane)
	for y := 0; y < clipImageSize; y++ {
		for x := 0; x < clipImageSize; x++ {
			i := resized.PixOffset(x, y)
			idx := y*clipImageSize + x
			for ch := 0; ch < 3; ch++ {
				v := float32(resized.Pix[i+ch]) / 255.0
				tensor[ch*plane+idx] = (v - clipMean[ch]) / clipStd[ch]
			}
		}
	}
	return tensor
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm > 0 {
		for i := range v {
			v[i] = float32(float64(v[i]) / norm)
		}
	}
	return v
}
