package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Configuration provides type-safe access to application settings
type Configuration struct {
	viper *viper.Viper
}

// NewConfiguration creates a new Configuration instance with default settings
func NewConfiguration() *Configuration {
	v := viper.New()
	setDefaults(v)
	return &Configuration{viper: v}
}

// NewConfigurationFromFile creates a Configuration instance from a config file
func NewConfigurationFromFile(configFile string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	return &Configuration{viper: v}, nil
}

// NewConfigurationFromEnv creates a Configuration instance that reads from environment variables
func NewConfigurationFromEnv() (*Configuration, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	return &Configuration{viper: v}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("debug", false)

	v.SetDefault("ffmpeg.path", "ffmpeg")
	v.SetDefault("ffprobe.path", "ffprobe")
	v.SetDefault("video.codec", "libx264")
	v.SetDefault("video.audio_codec", "aac")

	v.SetDefault("transcription.chunk_duration_sec", 2.0)
	v.SetDefault("transcription.max_words", 5)
	v.SetDefault("transcription.concurrency", 1)

	v.SetDefault("recognizer.backend", "whisper-server")
	v.SetDefault("recognizer.server_url", "http://127.0.0.1:8080")
	v.SetDefault("recognizer.language", "en")
	v.SetDefault("recognizer.timeout_sec", 120)

	v.SetDefault("whisper.cli_path", "whisper-cli")
	v.SetDefault("whisper.model_name", "base.en")
	v.SetDefault("whisper.models_dir", "./models")

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.transcription_model", "whisper-1")

	v.SetDefault("font.path", "/Library/Fonts/Arial.ttf")
	v.SetDefault("font.bold_path", "/Library/Fonts/Arial Bold.ttf")
	v.SetDefault("font.size", 30)
	v.SetDefault("font.color", "white")
	v.SetDefault("font.outline_color", "black")
	v.SetDefault("font.outline_width", 2)
	v.SetDefault("font.line_spacing", 4)
	v.SetDefault("font.bottom_padding", 50)
	v.SetDefault("font.width_percent", 0.8)

	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.model", "deepseek/deepseek-chat")
	v.SetDefault("llm.site_url", "http://localhost")
	v.SetDefault("llm.site_name", "Local Test")
	v.SetDefault("llm.max_context_tokens", 65536)
	v.SetDefault("llm.retry_attempts", 3)
	v.SetDefault("llm.retry_base_delay_ms", 2000)
	v.SetDefault("llm.timeout_sec", 60)

	v.SetDefault("virality.window_sec", 10.0)
	v.SetDefault("virality.chunk_size", 5)
	v.SetDefault("virality.top_clips", 20)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("VIDCAPTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys shared with the wider tooling ecosystem
	v.BindEnv("llm.api_key", "VIDCAPTION_LLM_API_KEY", "OPEN_ROUTER_KEY", "OPENROUTER_API_KEY")
	v.BindEnv("openai.api_key", "VIDCAPTION_OPENAI_API_KEY", "OPENAI_API_KEY")
	v.BindEnv("whisper.model_path", "VIDCAPTION_WHISPER_MODEL_PATH", "WHISPER_MODEL_PATH")
}

// Set overrides a configuration value, typically from a command line flag
func (c *Configuration) Set(key string, value interface{}) {
	c.viper.Set(key, value)
}

// GetLogLevel returns the configured log level name
func (c *Configuration) GetLogLevel() string {
	return c.viper.GetString("log.level")
}

// GetDebugMode returns whether verbose per-segment logging is enabled
func (c *Configuration) GetDebugMode() bool {
	return c.viper.GetBool("debug")
}

// GetFFmpegPath returns the ffmpeg binary path
func (c *Configuration) GetFFmpegPath() string {
	return c.viper.GetString("ffmpeg.path")
}

// GetFFprobePath returns the ffprobe binary path
func (c *Configuration) GetFFprobePath() string {
	return c.viper.GetString("ffprobe.path")
}

// GetVideoCodec returns the output video codec
func (c *Configuration) GetVideoCodec() string {
	return c.viper.GetString("video.codec")
}

// GetAudioCodec returns the output audio codec
func (c *Configuration) GetAudioCodec() string {
	return c.viper.GetString("video.audio_codec")
}

// GetChunkDurationSec returns the length of each transcription window in seconds
func (c *Configuration) GetChunkDurationSec() float64 {
	return c.viper.GetFloat64("transcription.chunk_duration_sec")
}

// GetMaxWordsPerSegment returns the maximum words per caption segment
func (c *Configuration) GetMaxWordsPerSegment() int {
	return c.viper.GetInt("transcription.max_words")
}

// GetTranscriptionConcurrency returns the number of concurrent recognizer calls
func (c *Configuration) GetTranscriptionConcurrency() int {
	return c.viper.GetInt("transcription.concurrency")
}

// GetRecognizerBackend returns the configured speech recognizer backend
func (c *Configuration) GetRecognizerBackend() string {
	return strings.ToLower(strings.TrimSpace(c.viper.GetString("recognizer.backend")))
}

// GetRecognizerServerURL returns the whisper.cpp server base URL
func (c *Configuration) GetRecognizerServerURL() string {
	return c.viper.GetString("recognizer.server_url")
}

// GetRecognizerLanguage returns the spoken language hint
func (c *Configuration) GetRecognizerLanguage() string {
	return c.viper.GetString("recognizer.language")
}

// GetRecognizerTimeout returns the per-request recognizer timeout
func (c *Configuration) GetRecognizerTimeout() time.Duration {
	return time.Duration(c.viper.GetInt("recognizer.timeout_sec")) * time.Second
}

// GetWhisperCLIPath returns the whisper.cpp CLI binary path
func (c *Configuration) GetWhisperCLIPath() string {
	return c.viper.GetString("whisper.cli_path")
}

// GetWhisperModelName returns the whisper.cpp model name used for downloads
func (c *Configuration) GetWhisperModelName() string {
	return c.viper.GetString("whisper.model_name")
}

// GetWhisperModelsDir returns the directory holding downloaded models
func (c *Configuration) GetWhisperModelsDir() string {
	return c.viper.GetString("whisper.models_dir")
}

// GetWhisperModelPath returns an explicitly configured model file. Empty means
// the path is derived from the model name inside the models directory.
func (c *Configuration) GetWhisperModelPath() string {
	return c.viper.GetString("whisper.model_path")
}

// GetOpenAIAPIKey returns the API key for the OpenAI-compatible transcription backend
func (c *Configuration) GetOpenAIAPIKey() string {
	return c.viper.GetString("openai.api_key")
}

// GetOpenAIBaseURL returns the base URL for the OpenAI-compatible transcription backend
func (c *Configuration) GetOpenAIBaseURL() string {
	return c.viper.GetString("openai.base_url")
}

// GetOpenAITranscriptionModel returns the transcription model name
func (c *Configuration) GetOpenAITranscriptionModel() string {
	return c.viper.GetString("openai.transcription_model")
}

// GetFontPath returns the regular font file path
func (c *Configuration) GetFontPath() string {
	return c.viper.GetString("font.path")
}

// GetBoldFontPath returns the bold font file path used for emphasis
func (c *Configuration) GetBoldFontPath() string {
	return c.viper.GetString("font.bold_path")
}

// GetFontSize returns the font size in pixels
func (c *Configuration) GetFontSize() int {
	return c.viper.GetInt("font.size")
}

// GetFontColor returns the fill color token
func (c *Configuration) GetFontColor() string {
	return c.viper.GetString("font.color")
}

// GetOutlineColor returns the outline color token
func (c *Configuration) GetOutlineColor() string {
	return c.viper.GetString("font.outline_color")
}

// GetOutlineWidth returns the outline width in pixels
func (c *Configuration) GetOutlineWidth() int {
	return c.viper.GetInt("font.outline_width")
}

// GetLineSpacing returns the spacing between lines in pixels
func (c *Configuration) GetLineSpacing() int {
	return c.viper.GetInt("font.line_spacing")
}

// GetBottomPadding returns the distance between caption block and frame bottom
func (c *Configuration) GetBottomPadding() int {
	return c.viper.GetInt("font.bottom_padding")
}

// GetWidthPercent returns the caption box width as a fraction of the frame width
func (c *Configuration) GetWidthPercent() float64 {
	return c.viper.GetFloat64("font.width_percent")
}

// GetLLMAPIKey returns the OpenRouter API key
func (c *Configuration) GetLLMAPIKey() string {
	return c.viper.GetString("llm.api_key")
}

// GetLLMBaseURL returns the chat completion API base URL
func (c *Configuration) GetLLMBaseURL() string {
	return c.viper.GetString("llm.base_url")
}

// GetLLMModel returns the chat model used for scoring and ranking
func (c *Configuration) GetLLMModel() string {
	return c.viper.GetString("llm.model")
}

// GetLLMSiteURL returns the referer sent to OpenRouter
func (c *Configuration) GetLLMSiteURL() string {
	return c.viper.GetString("llm.site_url")
}

// GetLLMSiteName returns the title sent to OpenRouter
func (c *Configuration) GetLLMSiteName() string {
	return c.viper.GetString("llm.site_name")
}

// GetLLMMaxContextTokens returns the context window used for prompt truncation
func (c *Configuration) GetLLMMaxContextTokens() int {
	return c.viper.GetInt("llm.max_context_tokens")
}

// GetLLMRetryAttempts returns how many times a ranking request is attempted
func (c *Configuration) GetLLMRetryAttempts() int {
	return c.viper.GetInt("llm.retry_attempts")
}

// GetLLMRetryBaseDelay returns the first backoff delay between ranking attempts
func (c *Configuration) GetLLMRetryBaseDelay() time.Duration {
	return time.Duration(c.viper.GetInt("llm.retry_base_delay_ms")) * time.Millisecond
}

// GetLLMTimeout returns the per-request LLM timeout
func (c *Configuration) GetLLMTimeout() time.Duration {
	return time.Duration(c.viper.GetInt("llm.timeout_sec")) * time.Second
}

// GetViralityWindowSec returns the window length used for moment scoring
func (c *Configuration) GetViralityWindowSec() float64 {
	return c.viper.GetFloat64("virality.window_sec")
}

// GetRankChunkSize returns the number of clips sent per ranking request
func (c *Configuration) GetRankChunkSize() int {
	return c.viper.GetInt("virality.chunk_size")
}

// GetTopClips returns the number of ranked clips kept in the output file
func (c *Configuration) GetTopClips() int {
	return c.viper.GetInt("virality.top_clips")
}
