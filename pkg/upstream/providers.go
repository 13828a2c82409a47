package upstream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// format describes the request/response shape of one provider API.
type format struct {
	provider string
	// authorize sets credentials on the request; it may rewrite the URL (gemini uses ?key=).
	authorize func(req *http.Request, apiKey string)
	body      func(model, prompt string) interface{}
	parse     func(data []byte) (string, error)
}

// 各厂商的请求/响应格式
var formats = map[string]format{
	"gemini": {
		provider: "Google Gemini",
		authorize: func(req *http.Request, apiKey string) {
			q := req.URL.Query()
			q.Set("key", apiKey)
			req.URL.RawQuery = q.Encode()
		},
		body: func(_, prompt string) interface{} {
			return map[string]interface{}{
				"contents": []map[string]interface{}{
					{"parts": []map[string]string{{"text": prompt}}},
				},
			}
		},
		parse: func(data []byte) (string, error) {
			var resp struct {
				Candidates []struct {
					Content struct {
						Parts []struct {
							Text string `json:"text"`
						} `json:"parts"`
					} `json:"content"`
				} `json:"candidates"`
			}
			if err := json.Unmarshal(data, &resp); err != nil {
				return "", err
			}
			if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
				return "", nil
			}
			return resp.Candidates[0].Content.Parts[0].Text, nil
		},
	},
	"cohere": {
		provider:  "Cohere",
		authorize: bearer,
		body: func(model, prompt string) interface{} {
			return map[string]interface{}{
				"model":       model,
				"prompt":      prompt,
				"max_tokens":  100,
				"temperature": 0.7,
			}
		},
		parse: func(data []byte) (string, error) {
			var resp struct {
				Generations []struct {
					Text string `json:"text"`
				} `json:"generations"`
			}
			if err := json.Unmarshal(data, &resp); err != nil {
				return "", err
			}
			if len(resp.Generations) == 0 {
				return "", nil
			}
			return resp.Generations[0].Text, nil
		},
	},
	"huggingface": {
		provider:  "Hugging Face",
		authorize: bearer,
		body: func(_, prompt string) interface{} {
			return map[string]string{"inputs": prompt}
		},
		parse: func(data []byte) (string, error) {
			var resp []struct {
				GeneratedText string `json:"generated_text"`
			}
			if err := json.Unmarshal(data, &resp); err != nil {
				// The inference API answers {"error": "..."} while a model is loading.
				var errResp struct {
					Error string `json:"error"`
				}
				if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
					return "", fmt.Errorf("huggingface: %s", errResp.Error)
				}
				return "", err
			}
			if len(resp) == 0 {
				return "", nil
			}
			return resp[0].GeneratedText, nil
		},
	},
	"openai": openAIFormat,
}

// openAIFormat is also used for custom upstreams exposing an OpenAI-compatible API.
var openAIFormat = format{
	provider:  "OpenAI",
	authorize: bearer,
	body: func(model, prompt string) interface{} {
		return map[string]interface{}{
			"model": model,
			"messages": []map[string]string{
				{"role": "user", "content": prompt},
			},
			"max_tokens":  150,
			"temperature": 0.7,
		}
	},
	parse: func(data []byte) (string, error) {
		var resp struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Message.Content, nil
	},
}

func bearer(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
}

func formatFor(name string) format {
	if f, ok := formats[name]; ok {
		return f
	}
	return openAIFormat
}

// redactURL strips query credentials before a URL is logged or returned in an error.
func redactURL(u *url.URL) string {
	c := *u
	if c.RawQuery != "" {
		c.RawQuery = "redacted"
	}
	return c.String()
}
