package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"math/rand"
	"math_practice_backend/internal/answer"
	"math_practice_backend/internal/config"
	"math_practice_backend/internal/grading"
	"math_practice_backend/internal/marker"
	"math_practice_backend/internal/model"
	"math_practice_backend/internal/practice"
	"math_practice_backend/internal/question"
	"math_practice_backend/internal/repository"
	"math_practice_backend/internal/util"
	"math_practice_backend/internal/vision"
	"math_practice_backend/pkg/logger"
	"math_practice_backend/pkg/monitoring"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	_ "image/png"
)

// SheetImage 一张上传的学生答题图片。
type SheetImage struct {
	Filename string
	Data     []byte
}

// ProcessOutcome 一批答题图片的批改产物。
type ProcessOutcome struct {
	Report       string   `json:"report"`
	SheetImages  []string `json:"sheet_images"`
	MarkedImages []string `json:"marked_images"`
	StudentCount int      `json:"student_count"`
	ResultCount  int      `json:"result_count"`
}

// AnalysisOutcome 错误知识点分析产物。
type AnalysisOutcome struct {
	ErrorAnalysis       grading.ErrorAnalysis `json:"error_analysis"`
	TeachingSuggestions string                `json:"teaching_suggestions"`
}

// GradingService 批改流水线：对每张答题图片依次执行 OCR、答案解析、
// 逐题批改、题目区域检测、标记绘制，再把全部产物写回会话。
// 单张图片失败只跳过这张图，不中断整批。
type GradingService struct {
	AI          *AIService
	Storage     *StorageService
	SessionRepo *repository.SessionRepository
	Marker      *marker.Marker
	Hub         *ProgressHub
	Cfg         *config.Config

	randMu sync.Mutex
	rng    *rand.Rand
}

func NewGradingService(ai *AIService, storage *StorageService, sessionRepo *repository.SessionRepository, mk *marker.Marker, hub *ProgressHub, cfg *config.Config, rng *rand.Rand) *GradingService {
	return &GradingService{
		AI:          ai,
		Storage:     storage,
		SessionRepo: sessionRepo,
		Marker:      mk,
		Hub:         hub,
		Cfg:         cfg,
		rng:         rng,
	}
}

// ProcessImages 批改一批学生答题图片并把结果写回会话。
func (s *GradingService) ProcessImages(ctx context.Context, userID uint, sessionID string, images []SheetImage) (*ProcessOutcome, error) {
	if len(images) == 0 {
		return nil, util.ErrNoImages
	}

	session, err := s.SessionRepo.FindByID(userID, sessionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}
	if len(session.PracticeData) == 0 {
		return nil, util.ErrPracticeNotReady
	}

	var sheet practice.Sheet
	if err := json.Unmarshal(session.PracticeData, &sheet); err != nil {
		return nil, fmt.Errorf("解析试卷数据失败: %w", err)
	}

	var (
		studentAnswers []answer.Sheet
		allResults     []grading.Result
		sheetURLs      []string
		markedURLs     []string
	)

	for i, img := range images {
		sa, results, imageURL, markedURL, err := s.processOne(ctx, userID, session.ID, sheet, i, len(images), img)
		if err != nil {
			logger.Log.Error("处理答题图片失败",
				zap.String("sessionId", session.ID),
				zap.Int("imageIndex", i),
				zap.String("filename", img.Filename),
				zap.Error(err))
			monitoring.SheetsProcessed.WithLabelValues("failed").Inc()
			s.progress(userID, session.ID, StageFailed, i, len(images), err.Error())
			continue
		}
		if sa == nil {
			// 图片可读但没有识别出内容，跳过
			monitoring.SheetsProcessed.WithLabelValues("skipped").Inc()
			continue
		}

		studentAnswers = append(studentAnswers, *sa)
		allResults = append(allResults, results...)
		sheetURLs = append(sheetURLs, imageURL)
		if markedURL != "" {
			markedURLs = append(markedURLs, markedURL)
		}
		monitoring.SheetsProcessed.WithLabelValues("processed").Inc()
	}

	if err := s.persist(session, studentAnswers, allResults, sheetURLs, markedURLs); err != nil {
		return nil, err
	}

	s.progress(userID, session.ID, StageReport, len(images), len(images), "生成批改报告")
	report := grading.GenerateReport(allResults, studentAnswers, time.Now())
	s.progress(userID, session.ID, StageDone, len(images), len(images), "批改完成")

	logger.Log.Info("批改完成",
		zap.String("sessionId", session.ID),
		zap.Int("imageCount", len(images)),
		zap.Int("studentCount", len(studentAnswers)),
		zap.Int("resultCount", len(allResults)))

	return &ProcessOutcome{
		Report:       report,
		SheetImages:  sheetURLs,
		MarkedImages: markedURLs,
		StudentCount: len(studentAnswers),
		ResultCount:  len(allResults),
	}, nil
}

// processOne 处理单张答题图片。OCR 没有识别出文字时返回全 nil，
// 调用方跳过这张图。
func (s *GradingService) processOne(ctx context.Context, userID uint, sessionID string, sheet practice.Sheet, index, total int, img SheetImage) (*answer.Sheet, []grading.Result, string, string, error) {
	if _, err := util.ValidateMimeType(bytes.NewReader(img.Data), []string{util.MimeImage}); err != nil {
		return nil, nil, "", "", util.ErrUnsupportedImage
	}

	s.progress(userID, sessionID, StageUpload, index, total, "保存答题图片")
	workPath, imageURL, err := s.storeOriginal(ctx, sessionID, img)
	if err != nil {
		return nil, nil, "", "", err
	}

	s.progress(userID, sessionID, StageOCR, index, total, "识别图片文字")
	ocr := s.AI.OCRPracticeSheet(ctx, workPath)
	if ocr.RawText == "" {
		logger.Log.Warn("图片未识别到文字，跳过",
			zap.String("sessionId", sessionID),
			zap.String("filename", img.Filename))
		return nil, nil, "", "", nil
	}

	s.progress(userID, sessionID, StageParse, index, total, "解析学生答案")
	sa := s.AI.ParseStudentAnswers(ctx, ocr.RawText, sheet)
	sa.StudentName = answer.ResolveStudentName(sa.Name, index)
	sa.StudentID = answer.StudentIDAt(index)

	s.progress(userID, sessionID, StageGrade, index, total, "批改答案")
	results := s.gradeSheet(ctx, sheet, &sa)

	s.progress(userID, sessionID, StageDetect, index, total, "检测题目区域")
	areas := s.AI.DetectQuestionAreas(ctx, workPath, s.Cfg.Practice.DetectResizeSize)
	if len(areas) > 0 {
		answer.AttachPositions(&sa, areas)
	}

	s.progress(userID, sessionID, StageMark, index, total, "绘制批改标记")
	markedURL, err := s.markImage(ctx, sessionID, workPath, img.Filename, results, sheet, areas, &sa)
	if err != nil {
		// 标记失败不影响批改结果，只丢掉这张标记图
		logger.Log.Error("绘制批改标记失败",
			zap.String("sessionId", sessionID),
			zap.String("filename", img.Filename),
			zap.Error(err))
		markedURL = ""
	}

	return &sa, results, imageURL, markedURL, nil
}

// gradeSheet 按试卷顺序逐题批改：选择题本地比对，计算题交给AI。
// 学生答卷中找不到的题目跳过。
func (s *GradingService) gradeSheet(ctx context.Context, sheet practice.Sheet, sa *answer.Sheet) []grading.Result {
	var results []grading.Result
	for _, section := range sheet.Sections {
		for _, q := range section.Questions {
			studentQ, ok := sa.FindAnswer(section.Type, q.ID)
			if !ok {
				continue
			}

			var r grading.Result
			if section.Type == question.TypeChoice {
				r = grading.GradeChoice(studentQ.Answer.Choice, q.Answer, q.Choices)
			} else {
				r = s.AI.GradeCalculation(ctx, studentQ.Answer.SolutionSteps, studentQ.Answer.Result).Result()
			}
			results = append(results, r.Enriched(q, sa.StudentName, sa.StudentID))
		}
	}
	return results
}

// storeOriginal 把上传图片写入本地会话目录供后续处理，并上传到
// 存储后端。本地存储时两者是同一个文件。
func (s *GradingService) storeOriginal(ctx context.Context, sessionID string, img SheetImage) (string, string, error) {
	filename := filepath.Base(img.Filename)
	if filename == "" || filename == "." {
		filename = "sheet.jpg"
	}
	relPath := filepath.Join("sessions", sessionID, "images", filename)
	workPath := filepath.Join(s.Cfg.Storage.LocalPath, relPath)

	if err := os.MkdirAll(filepath.Dir(workPath), 0755); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(workPath, img.Data, 0644); err != nil {
		return "", "", err
	}

	url, err := s.Storage.UploadFile(ctx, filepath.ToSlash(relPath), workPath, "image/jpeg")
	if err != nil {
		return "", "", err
	}
	return workPath, url, nil
}

// markImage 在原图上绘制批改标记并保存为 {原名}_graded.jpg。
// 检测到题目区域时按区域定位标记，没有区域时由标记器按版面估算。
func (s *GradingService) markImage(ctx context.Context, sessionID, workPath, filename string, results []grading.Result, sheet practice.Sheet, areas []vision.QuestionArea, sa *answer.Sheet) (string, error) {
	f, err := os.Open(workPath)
	if err != nil {
		return "", err
	}
	src, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("解码图片失败: %w", err)
	}

	var positions []vision.MarkPosition
	if len(areas) > 0 {
		info, err := util.GetImageInfo(workPath)
		if err != nil {
			return "", err
		}
		s.randMu.Lock()
		positions = vision.MarkPositions(s.rng, info.Width, info.Height, areas)
		s.randMu.Unlock()
	}

	marked, count := s.Marker.MarkImage(src, results, sheet, positions, sa)
	logger.Log.Info("批改标记绘制完成",
		zap.String("sessionId", sessionID),
		zap.String("filename", filename),
		zap.Int("markCount", count))

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, marked, &jpeg.Options{Quality: 95}); err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" {
		base = "sheet"
	}
	relPath := filepath.Join("sessions", sessionID, "graded_images", base+"_graded.jpg")
	gradedPath := filepath.Join(s.Cfg.Storage.LocalPath, relPath)
	if err := os.MkdirAll(filepath.Dir(gradedPath), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(gradedPath, buf.Bytes(), 0644); err != nil {
		return "", err
	}

	return s.Storage.UploadFile(ctx, filepath.ToSlash(relPath), gradedPath, "image/jpeg")
}

func (s *GradingService) persist(session *model.PracticeSession, studentAnswers []answer.Sheet, results []grading.Result, sheetURLs, markedURLs []string) error {
	answersJSON, err := json.Marshal(studentAnswers)
	if err != nil {
		return err
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return err
	}
	sheetsJSON, err := json.Marshal(sheetURLs)
	if err != nil {
		return err
	}
	markedJSON, err := json.Marshal(markedURLs)
	if err != nil {
		return err
	}

	session.StudentAnswers = answersJSON
	session.GradingResults = resultsJSON
	session.SheetImages = sheetsJSON
	session.MarkedImages = markedJSON
	return s.SessionRepo.Save(session)
}

// AnalyzeErrors 分析会话批改结果中的错误知识点，生成教学建议并
// 写回会话。
func (s *GradingService) AnalyzeErrors(userID uint, sessionID string) (*AnalysisOutcome, error) {
	session, err := s.SessionRepo.FindByID(userID, sessionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, util.ErrSessionNotFound
		}
		return nil, err
	}
	if len(session.GradingResults) == 0 {
		return nil, util.ErrNoGradingResults
	}

	var results []grading.Result
	if err := json.Unmarshal(session.GradingResults, &results); err != nil {
		return nil, err
	}

	analysis := grading.AnalyzeErrors(results)
	suggestions := grading.TeachingSuggestions(results)

	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return nil, err
	}
	session.ErrorAnalysis = analysisJSON
	session.TeachingSuggestions = suggestions
	if err := s.SessionRepo.Save(session); err != nil {
		return nil, err
	}

	logger.Log.Info("错误知识点分析完成",
		zap.String("sessionId", session.ID),
		zap.Int("errorPointCount", len(analysis.ErrorKnowledgePoints)))

	return &AnalysisOutcome{
		ErrorAnalysis:       analysis,
		TeachingSuggestions: suggestions,
	}, nil
}

func (s *GradingService) progress(userID uint, sessionID, stage string, index, total int, message string) {
	if s.Hub == nil {
		return
	}
	s.Hub.PushProgress(userID, ProgressUpdate{
		SessionID:  sessionID,
		Stage:      stage,
		ImageIndex: index,
		ImageCount: total,
		Message:    message,
	})
}
