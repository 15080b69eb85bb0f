package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"math_practice_backend/internal/answer"
	"math_practice_backend/internal/config"
	"math_practice_backend/internal/grading"
	"math_practice_backend/internal/knowledge"
	"math_practice_backend/internal/practice"
	"math_practice_backend/internal/util"
	"math_practice_backend/internal/vision"
	"math_practice_backend/pkg/logger"
	"math_practice_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DashScope 兼容模式下的默认模型，可被配置覆盖
const (
	defaultChatModel       = "qwen-plus"
	defaultVisionOCRModel  = "qwen-vl-ocr"
	defaultVisionAreaModel = "qwen-vl-max"
)

const defaultOCRCacheTTL = 24 * time.Hour

const extractKnowledgePointsPrompt = `你是一个数学教学专家，需要根据用户的要求精准匹配七年级第二章《有理数计算》的知识点。

可用的知识点列表：
%s

用户要求："%s"

请根据用户的要求，从上述知识点中选择所有符合要求的知识点。要求：
1. 精准匹配，不要选择不相关的知识点
2. 如果用户要求涉及多个知识点，请选择所有相关的知识点
3. 只返回知识点的序号，用逗号分隔，例如：1,3,5
4. 如果没有匹配的知识点，返回空字符串

请直接返回匹配的知识点序号：`

const parseAnswerSystemPrompt = "你是一位专业的数学老师，擅长解析学生的答题内容。请仔细识别题目编号和答案，并按照要求的JSON格式输出。"

const parseAnswerPrompt = `请将以下OCR识别的学生答题内容解析为结构化的JSON格式。

OCR文本：
%s

参考练习试卷结构：
%s

要求：
1. 识别所有题目编号和对应的学生答案
2. 对于选择题，提取学生选择的选项（A、B、C、D等）
3. 对于计算题，提取学生的解题步骤和最终答案
4. 按照student_answer.json的格式输出

返回JSON格式：
{
  "name": "学生姓名（如果识别到）",
  "practice_id": "",
  "sections": [
    {
      "name": "一、选择题",
      "type": "choice",
      "questions": [
        {
          "id": "题目ID",
          "answer": {
            "choice": "A"
          }
        }
      ]
    },
    {
      "name": "二、计算题",
      "type": "calculation",
      "questions": [
        {
          "id": "题目ID",
          "answer": {
            "solution_steps": ["步骤1", "步骤2"],
            "result": "最终答案"
          }
        }
      ]
    }
  ]
}

请严格按照JSON格式返回，不要添加其他内容。`

const gradeCalculationSystemPrompt = "你是一位专业的数学老师，擅长分析学生的解题过程。请仔细分析每个步骤的正确性，特别注意数学运算规则。"

const gradeCalculationPrompt = `请分析学生的计算题解答过程，判断每个步骤是否正确。

学生解答步骤：
%s

学生最终答案：%s

要求：
1. 逐个分析学生解答的每个步骤
2. 判断步骤是否正确，如果不正确请说明错误原因
3. 判断最终答案是否正确
4. 特别注意符号运算、运算顺序等数学规则

返回JSON格式：
{
  "overall_correct": true/false,
  "final_answer_correct": true/false,
  "steps_analysis": [
    {
      "step_index": 0,
      "student_step": "学生步骤",
      "is_correct": true/false,
      "explanation": "错误原因或正确说明"
    }
  ],
  "final_answer_explanation": "最终答案分析"
}`

const ocrPrompt = `请仔细识别这张数学作业图片中的所有文字和数学表达式。要求：
1. 准确识别题目编号和数字、运算符号、分数、等号等数学符号
2. 数学表达式使用 latex 语法。
3. 识别中文题目描述和解答过程
4. 对于手写内容，请尽可能准确识别
5. 按照原图的顺序输出内容

请直接输出识别的文字内容，不要添加额外的解释。`

const detectAreasPrompt = `定位试卷图片中所有题目区域，输出为二维线框坐标（像素坐标），按照以下 JSON 结构返回：

{
  "question_areas": [
    {
      "question_number": "题目编号",
      "bbox_2d": [x1, y1, x2, y2]
    }
  ]
}

要求：
- bbox_2d 是题目区域的矩形坐标，[x1, y1, x2, y2] 为像素坐标（整数）
- question_number 为题目编号（如 "1", "2" 等）
- 只返回 JSON，不要其他说明`

var numberPattern = regexp.MustCompile(`\d+`)

// OCRResult 图片文字识别结果。
type OCRResult struct {
	RawText    string  `json:"raw_text"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Model      string  `json:"model,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// AIService 封装对 OpenAI 兼容大模型接口的全部调用。
// 所有方法失败时给出安全兜底值而不是向上抛错，批改流水线靠这一点
// 保证单张图片的失败不会拖垮整批。
type AIService struct {
	mu      sync.RWMutex
	client  *openai.Client
	cfg     config.AIConfig
	limiter *rate.Limiter
	redis   *redis.Client
}

func NewAIService(cfg config.AIConfig, rdb *redis.Client) *AIService {
	s := &AIService{redis: rdb}
	s.apply(cfg)
	return s
}

// Reload 配置热更新回调，替换客户端与限流器。
func (s *AIService) Reload(cfg config.AIConfig) {
	s.apply(cfg)
	logger.Log.Info("AI配置已热更新", zap.String("base_url", cfg.BaseURL))
}

func (s *AIService) apply(cfg config.AIConfig) {
	if cfg.ChatModel == "" {
		cfg.ChatModel = defaultChatModel
	}
	if cfg.VisionOCRModel == "" {
		cfg.VisionOCRModel = defaultVisionOCRModel
	}
	if cfg.VisionAreaModel == "" {
		cfg.VisionAreaModel = defaultVisionAreaModel
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMin > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMin)), 1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.client = openai.NewClientWithConfig(clientConfig)
	s.limiter = limiter
}

func (s *AIService) snapshot() (*openai.Client, config.AIConfig, *rate.Limiter) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client, s.cfg, s.limiter
}

func (s *AIService) chatCompletion(ctx context.Context, kind string, req openai.ChatCompletionRequest) (string, error) {
	client, _, limiter := s.snapshot()
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	start := time.Now()
	resp, err := client.CreateChatCompletion(ctx, req)
	monitoring.ObserveAIRequest(kind, start, err)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("AI returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// cleanJSONFence 去掉模型返回内容外层的 markdown 代码块标记。
func cleanJSONFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[7:]
	}
	if strings.HasPrefix(s, "```") {
		s = s[3:]
	}
	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-3]
	}
	return strings.TrimSpace(s)
}

func imageMessage(prompt string, imageData []byte) []openai.ChatCompletionMessage {
	base64Image := base64.StdEncoding.EncodeToString(imageData)
	return []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: "data:image/jpeg;base64," + base64Image},
				},
			},
		},
	}
}

// ExtractKnowledgePoints 让模型从知识点目录中挑出与教学要求匹配的
// 条目，模型只回序号。调用失败时回退到本地关键词匹配。
func (s *AIService) ExtractKnowledgePoints(ctx context.Context, text string) []knowledge.KnowledgePoint {
	all := knowledge.All()

	lines := make([]string, 0, len(all))
	for i, point := range all {
		lines = append(lines, fmt.Sprintf("%d. %s: %s", i+1, point.Outline, point.Detail))
	}

	_, cfg, _ := s.snapshot()
	req := openai.ChatCompletionRequest{
		Model: cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(extractKnowledgePointsPrompt, strings.Join(lines, "\n"), text)},
		},
		MaxTokens:   100,
		Temperature: 0.1,
	}

	result, err := s.chatCompletion(ctx, "extract_knowledge_points", req)
	if err != nil {
		logger.Log.Error("AI知识点提取失败，回退到关键词匹配", zap.Error(err))
		return knowledge.FindMatching(text)
	}

	result = strings.TrimSpace(result)
	if result == "" {
		return nil
	}

	// 序号从1起
	var matched []knowledge.KnowledgePoint
	for _, numStr := range numberPattern.FindAllString(result, -1) {
		index, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		if index >= 1 && index <= len(all) {
			matched = append(matched, all[index-1])
		}
	}
	return matched
}

// OCRPracticeSheet 识别答题图片上的全部文字。内容相同的图片命中
// Redis 缓存时直接复用上次的识别结果。
func (s *AIService) OCRPracticeSheet(ctx context.Context, imagePath string) OCRResult {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		logger.Log.Error("读取答题图片失败", zap.String("path", imagePath), zap.Error(err))
		return OCRResult{Method: "ai_ocr_failed", Error: err.Error()}
	}

	var cacheKey string
	if s.redis != nil {
		sum := sha256.Sum256(data)
		cacheKey = "ocr:" + hex.EncodeToString(sum[:])
		if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			var res OCRResult
			if json.Unmarshal([]byte(cached), &res) == nil {
				logger.Log.Info("OCR缓存命中", zap.String("image", filepath.Base(imagePath)))
				return res
			}
		}
	}

	_, cfg, _ := s.snapshot()
	req := openai.ChatCompletionRequest{
		Model:       cfg.VisionOCRModel,
		Messages:    imageMessage(ocrPrompt, data),
		MaxTokens:   2000,
		Temperature: 0.1,
	}

	rawText, err := s.chatCompletion(ctx, "ocr", req)
	if err != nil {
		logger.Log.Error("图片文字识别失败", zap.Error(err))
		return OCRResult{Method: "ai_ocr_failed", Error: err.Error()}
	}

	rawText = strings.TrimSpace(rawText)
	confidence := 30.0
	if utf8.RuneCountInString(rawText) > 10 {
		confidence = 85.0
	}

	res := OCRResult{
		RawText:    rawText,
		Confidence: confidence,
		Method:     "ai_ocr",
		Model:      cfg.VisionOCRModel,
	}

	if s.redis != nil && cacheKey != "" {
		ttl := defaultOCRCacheTTL
		if cfg.OCRCacheTTLHours > 0 {
			ttl = time.Duration(cfg.OCRCacheTTLHours) * time.Hour
		}
		if payload, err := json.Marshal(res); err == nil {
			s.redis.Set(ctx, cacheKey, payload, ttl)
		}
	}
	return res
}

// ParseStudentAnswers 把OCR文本解析成结构化答卷。解析失败时返回
// 空答卷（姓名为未知学生），不中断批改。
func (s *AIService) ParseStudentAnswers(ctx context.Context, ocrText string, sheet practice.Sheet) answer.Sheet {
	sheetJSON, err := json.MarshalIndent(sheet, "", "  ")
	if err != nil {
		logger.Log.Error("序列化练习卷失败", zap.Error(err))
		return answer.EmptySheet()
	}

	_, cfg, _ := s.snapshot()
	req := openai.ChatCompletionRequest{
		Model: cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: parseAnswerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(parseAnswerPrompt, ocrText, string(sheetJSON))},
		},
		MaxTokens:   2000,
		Temperature: 0.1,
	}

	content, err := s.chatCompletion(ctx, "parse_answers", req)
	if err != nil {
		logger.Log.Error("解析学生答案失败", zap.Error(err))
		return answer.EmptySheet()
	}

	var parsed answer.Sheet
	if err := json.Unmarshal([]byte(cleanJSONFence(content)), &parsed); err != nil {
		logger.Log.Error("解析学生答案失败", zap.Error(err))
		return answer.EmptySheet()
	}
	if parsed.Sections == nil {
		parsed.Sections = []answer.Section{}
	}
	return parsed
}

// GradeCalculation 让模型逐步分析计算题解答。调用或解析失败时返回
// 全部判错的保底结论。
func (s *AIService) GradeCalculation(ctx context.Context, studentSteps []string, studentResult string) grading.CalculationGrade {
	stepsJSON, err := json.MarshalIndent(studentSteps, "", "  ")
	if err != nil {
		stepsJSON = []byte("[]")
	}

	_, cfg, _ := s.snapshot()
	req := openai.ChatCompletionRequest{
		Model: cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: gradeCalculationSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(gradeCalculationPrompt, string(stepsJSON), studentResult)},
		},
		MaxTokens:   1500,
		Temperature: 0.1,
	}

	content, err := s.chatCompletion(ctx, "grade_calculation", req)
	if err != nil {
		logger.Log.Error("批改计算题失败", zap.Error(err))
		return grading.FallbackCalculationGrade()
	}

	var g grading.CalculationGrade
	if err := json.Unmarshal([]byte(cleanJSONFence(content)), &g); err != nil {
		logger.Log.Error("批改计算题失败", zap.Error(err))
		return grading.FallbackCalculationGrade()
	}
	if g.StepsAnalysis == nil {
		g.StepsAnalysis = []grading.StepAnalysis{}
	}
	return g
}

// DetectQuestionAreas 检测答题图片上每道题的区域。图片先拉伸到
// resizeSize×resizeSize 再送检，返回的区域坐标基于缩放后的图片，
// 带原始与缩放尺寸供换算。题号缺失或坐标退化的区域在此丢弃。
func (s *AIService) DetectQuestionAreas(ctx context.Context, imagePath string, resizeSize int) []vision.QuestionArea {
	if resizeSize <= 0 {
		resizeSize = 1000
	}

	info, err := util.GetImageInfo(imagePath)
	if err != nil {
		logger.Log.Error("题目区域检测失败", zap.Error(err))
		return nil
	}

	ext := filepath.Ext(imagePath)
	if ext == "" {
		ext = ".jpg"
	}
	tmp, err := os.CreateTemp("", "resized_*"+ext)
	if err != nil {
		logger.Log.Error("创建缩放临时文件失败", zap.Error(err))
		return nil
	}
	resizedPath := tmp.Name()
	tmp.Close()
	defer os.Remove(resizedPath)

	if err := util.ResizeImage(imagePath, resizedPath, resizeSize, resizeSize); err != nil {
		logger.Log.Error("题目区域检测失败", zap.Error(err))
		return nil
	}

	data, err := os.ReadFile(resizedPath)
	if err != nil {
		logger.Log.Error("读取缩放图片失败", zap.Error(err))
		return nil
	}

	logger.Log.Info("检测题目区域",
		zap.String("original_size", fmt.Sprintf("%dx%d", info.Width, info.Height)),
		zap.Int("resize_size", resizeSize))

	_, cfg, _ := s.snapshot()
	req := openai.ChatCompletionRequest{
		Model:       cfg.VisionAreaModel,
		Messages:    imageMessage(detectAreasPrompt, data),
		MaxTokens:   2000,
		Temperature: 0.1,
	}

	content, err := s.chatCompletion(ctx, "detect_areas", req)
	if err != nil {
		logger.Log.Error("题目区域检测失败", zap.Error(err))
		return nil
	}

	areas, err := vision.ParseDetection([]byte(cleanJSONFence(content)), info.Width, info.Height, resizeSize)
	if err != nil {
		logger.Log.Error("题目区域JSON解析失败", zap.Error(err))
		return nil
	}

	valid := make([]vision.QuestionArea, 0, len(areas))
	for i, area := range areas {
		if err := area.Validate(); err != nil {
			logger.Log.Warn("题目区域验证失败，跳过", zap.Int("index", i+1), zap.Error(err))
			continue
		}
		valid = append(valid, area)
	}

	if len(valid) == 0 {
		logger.Log.Warn("未检测到任何题目区域")
	} else {
		logger.Log.Info("检测到题目区域", zap.Int("count", len(valid)))
	}
	return valid
}
