// Package catalog holds the static 1min.ai model tables and the capability
// predicates derived from them.
package catalog

const (
	DefaultModel      = "gpt-3.5-turbo"
	DefaultImageModel = "flux-schnell"
)

// AllModels is the full set of models the relay accepts.
var AllModels = []string{
	// OpenAI
	"gpt-o1-pro",
	"gpt-o4-mini",
	"gpt-4.1-nano",
	"gpt-4.1-mini",
	"o3-mini",
	"o1-preview",
	"o1-mini",
	"gpt-4o-mini",
	"gpt-4o",
	"gpt-4-turbo",
	"gpt-4",
	"gpt-3.5-turbo",
	"whisper-1",
	"tts-1",
	"tts-1-hd",
	"dall-e-2",
	"dall-e-3",
	// Claude
	"claude-instant-1.2",
	"claude-2.1",
	"claude-3-5-sonnet-20240620",
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
	"claude-3-5-haiku-20241022",
	// GoogleAI
	"gemini-1.0-pro",
	"gemini-1.5-pro",
	"gemini-1.5-flash",
	// MistralAI
	"mistral-large-latest",
	"mistral-small-latest",
	"mistral-nemo",
	"pixtral-12b",
	"open-mixtral-8x22b",
	"open-mixtral-8x7b",
	"open-mistral-7b",
	// Replicate
	"meta/llama-2-70b-chat",
	"meta/meta-llama-3-70b-instruct",
	"meta/meta-llama-3.1-405b-instruct",
	// DeepSeek
	"deepseek-chat",
	"deepseek-reasoner",
	// Cohere
	"command",
	// xAI
	"grok-2",
	// Leonardo.ai
	"phoenix",
	"lightning-xl",
	"anime-xl",
	"diffusion-xl",
	"kino-xl",
	"vision-xl",
	"albedo-base-xl",
	// Midjourney
	"midjourney",
	"midjourney_6_1",
	// Flux
	"flux-schnell",
	"flux-dev",
	"flux-pro",
	"flux-1.1-pro",
}

var visionModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4-turbo",
}

var codeInterpreterModels = []string{
	"gpt-4o",
	"claude-3-5-sonnet-20240620",
	"claude-3-5-haiku-20241022",
	"deepseek-chat",
	"deepseek-reasoner",
}

var retrievalModels = []string{
	"gemini-1.0-pro",
	"gemini-1.5-pro",
	"gemini-1.5-flash",
	"o3-mini",
	"o1-preview",
	"o1-mini",
	"gpt-4o-mini",
	"gpt-4o",
	"gpt-4-turbo",
	"gpt-3.5-turbo",
	"claude-3-5-sonnet-20240620",
	"claude-3-opus-20240229",
	"claude-3-sonnet-20240229",
	"claude-3-haiku-20240307",
	"claude-3-5-haiku-20241022",
	"mistral-large-latest",
	"mistral-small-latest",
	"mistral-nemo",
	"pixtral-12b",
	"open-mixtral-8x22b",
	"open-mixtral-8x7b",
	"open-mistral-7b",
	"meta/llama-2-70b-chat",
	"meta/meta-llama-3-70b-instruct",
	"meta/meta-llama-3.1-405b-instruct",
	"command",
	"grok-2",
	"deepseek-chat",
	"deepseek-reasoner",
}

var functionCallingModels = []string{
	"gpt-4",
	"gpt-3.5-turbo",
}

var imageGenerationModels = []string{
	"dall-e-3",
	"dall-e-2",
	"stable-diffusion-xl-1024-v1-0",
	"stable-diffusion-v1-6",
	"midjourney",
	"midjourney_6_1",
	"phoenix",
	"lightning-xl",
	"anime-xl",
	"diffusion-xl",
	"kino-xl",
	"vision-xl",
	"albedo-base-xl",
	"flux-schnell",
	"flux-dev",
	"flux-pro",
	"flux-1.1-pro",
}

var variationModels = []string{
	"midjourney",
	"midjourney_6_1",
	"dall-e-2",
	"clipdrop",
}

var textToSpeechModels = []string{
	"tts-1",
	"tts-1-hd",
}

var speechToTextModels = []string{
	"whisper-1",
}

func contains(set []string, model string) bool {
	for _, m := range set {
		if m == model {
			return true
		}
	}

	return false
}

// IsKnownModel reports whether the relay accepts the model at all.
func IsKnownModel(model string) bool { return contains(AllModels, model) }

func SupportsVision(model string) bool          { return contains(visionModels, model) }
func SupportsCodeInterpreter(model string) bool { return contains(codeInterpreterModels, model) }
func SupportsRetrieval(model string) bool       { return contains(retrievalModels, model) }
func SupportsFunctionCalling(model string) bool { return contains(functionCallingModels, model) }
func SupportsImageGeneration(model string) bool { return contains(imageGenerationModels, model) }
func SupportsVariation(model string) bool       { return contains(variationModels, model) }
func SupportsTextToSpeech(model string) bool    { return contains(textToSpeechModels, model) }
func SupportsSpeechToText(model string) bool    { return contains(speechToTextModels, model) }

// Capabilities is the per-model flag block exposed on /v1/models.
type Capabilities struct {
	Vision          bool `json:"vision"`
	CodeInterpreter bool `json:"code_interpreter"`
	Retrieval       bool `json:"retrieval"`
	FunctionCalling bool `json:"function_calling"`
}

func CapabilitiesFor(model string) Capabilities {
	return Capabilities{
		Vision:          SupportsVision(model),
		CodeInterpreter: SupportsCodeInterpreter(model),
		Retrieval:       SupportsRetrieval(model),
		FunctionCalling: SupportsFunctionCalling(model),
	}
}
