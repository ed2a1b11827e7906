// Package openai implements the ai interfaces against any OpenAI-compatible
// embedding API, including local servers like Ollama, LocalAI and vLLM.
package openai
