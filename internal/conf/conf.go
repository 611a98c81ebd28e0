package conf

// Bootstrap 服务启动配置
type Bootstrap struct {
	Server  *Server
	Data    *Data
	Llm     *LLM
	Report  *Report
	Search  *Search
	Article *Article
	Log     *Log
}

type Server struct {
	Http *HTTP
}

type HTTP struct {
	Addr    string `json:"addr"`
	Timeout string `json:"timeout"`
}

type Data struct {
	Database *Database
}

type Database struct {
	Host     string `json:"host"`
	Port     int32  `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SslMode  string `json:"ssl_mode"`
}

// LLM 生成模型相关配置。Provider 为默认提供方（openai 或 gemini），
// 请求可以用 model 字段覆盖。
type LLM struct {
	Provider    string       `json:"provider"`
	Openai      *OpenAI      `json:"openai"`
	Gemini      *Gemini      `json:"gemini"`
	Refine      *Refine      `json:"refine"`
	Concurrency *Concurrency `json:"concurrency"`
}

type OpenAI struct {
	BaseUrl   string `json:"base_url"`
	ApiKey    string `json:"api_key"`
	Model     string `json:"model"`
	MaxTokens int32  `json:"max_tokens"`
}

type Gemini struct {
	ApiKey string `json:"api_key"`
	Model  string `json:"model"`
}

// Refine 查询改写（function calling）配置，留空 Model 则复用生成模型
type Refine struct {
	Enabled bool   `json:"enabled"`
	Model   string `json:"model"`
}

type Concurrency struct {
	Qps int32 `json:"qps"`
	Rpm int32 `json:"rpm"`
}

// Report 报告管线配置
type Report struct {
	SearchLimit  int32  `json:"search_limit"`
	EmbedBaseUrl string `json:"embed_base_url"`
	Timeout      string `json:"timeout"`
}

// Search 搜索兜底配置：直连数据库失败时改走 HTTP 搜索接口
type Search struct {
	Fallback *SearchFallback `json:"fallback"`
}

type SearchFallback struct {
	BaseUrl string `json:"base_url"`
	Timeout int32  `json:"timeout"`
}

// Article 文章取回配置
type Article struct {
	// LiveFetch 为 true 时，库中缺失正文的 URL 会尝试在线抓取
	LiveFetch bool `json:"live_fetch"`
}

type Log struct {
	Level string `json:"level"`
	File  string `json:"file"`
}
