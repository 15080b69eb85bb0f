package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ImageInfo 存储图片信息
type ImageInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	Size   int64  `json:"size"`
}

// GetImageInfo 使用ffmpeg-go库获取图片信息
func GetImageInfo(imagePath string) (*ImageInfo, error) {
	fileInfo, err := os.Stat(imagePath)
	if err != nil {
		return nil, fmt.Errorf("图片文件不存在: %v", err)
	}

	jsonOutput, err := ffmpeg.Probe(imagePath)
	if err != nil {
		return nil, fmt.Errorf("获取图片信息失败: %v", err)
	}

	var result struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
		Format struct {
			Size   string `json:"size"`
			Format string `json:"format_name"`
		} `json:"format"`
	}

	if err := json.Unmarshal([]byte(jsonOutput), &result); err != nil {
		return nil, fmt.Errorf("解析图片信息失败: %v", err)
	}

	var width, height int
	for _, stream := range result.Streams {
		if stream.CodecType == "video" {
			width = stream.Width
			height = stream.Height
			break
		}
	}

	size, err := strconv.ParseInt(result.Format.Size, 10, 64)
	if err != nil {
		size = fileInfo.Size()
	}

	format := "unknown"
	if len(result.Format.Format) > 0 {
		formatParts := strings.Split(result.Format.Format, ",")
		if len(formatParts) > 0 {
			format = formatParts[0]
		}
	}

	return &ImageInfo{
		Width:  width,
		Height: height,
		Format: format,
		Size:   size,
	}, nil
}

// ResizeImage 把图片拉伸缩放到 width×height 并写入 dstPath。
// 不保持宽高比，坐标换算依赖这一点。
func ResizeImage(srcPath, dstPath string, width, height int) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("创建缩放目录失败: %v", err)
	}

	err := ffmpeg.Input(srcPath).
		Output(dstPath, ffmpeg.KwArgs{
			"vf":  fmt.Sprintf("scale=%d:%d", width, height),
			"q:v": "2", // 图像质量 (1-31, 越小质量越高)
		}).
		OverWriteOutput().
		Run()
	if err != nil {
		return fmt.Errorf("缩放图片失败: %v", err)
	}
	return nil
}

// GetFFmpegVersion 获取FFmpeg版本信息，用于检查FFmpeg是否正确安装
func GetFFmpegVersion() (string, error) {
	cmd := exec.Command("ffmpeg", "-version", "-hide_banner")
	var out bytes.Buffer
	var errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("获取FFmpeg版本失败，请确保FFmpeg已正确安装: %v, %s", err, errOut.String())
	}

	return out.String(), nil
}
