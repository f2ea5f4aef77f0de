package timelapse

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// VideoWriter はフレーム列を動画ファイルに書き出す
type VideoWriter interface {
	ExtendVideo(ctx context.Context, videoPath string, frames []Frame, quality int) error
}

// VideoGenerator はFFmpegで動画を生成する
type VideoGenerator struct {
	tempDir string // 一時ファイル用ディレクトリ
	fps     int
}

// NewVideoGenerator は新しいVideoGeneratorを作成する
func NewVideoGenerator(tempDir string) *VideoGenerator {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "arscope-timelapse")
	}
	return &VideoGenerator{tempDir: tempDir, fps: 30}
}

// ExtendVideo は既存の動画にフレームを追加する。動画がなければ新規に作成する
func (vg *VideoGenerator) ExtendVideo(ctx context.Context, videoPath string, frames []Frame, quality int) error {
	if len(frames) == 0 {
		return nil
	}

	sessionDir := filepath.Join(vg.tempDir, fmt.Sprintf("session_%d", time.Now().UnixNano()))
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return fmt.Errorf("一時ディレクトリの作成に失敗: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(sessionDir)
	}()

	imageFiles, err := vg.saveFramesAsImages(sessionDir, frames)
	if err != nil {
		return fmt.Errorf("フレーム画像の保存に失敗: %w", err)
	}

	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		return vg.createNewVideo(ctx, videoPath, imageFiles, quality)
	}
	return vg.appendToVideo(ctx, videoPath, imageFiles, quality)
}

// saveFramesAsImages はフレームを連番のJPEGファイルとして保存する
func (vg *VideoGenerator) saveFramesAsImages(sessionDir string, frames []Frame) ([]string, error) {
	imageFiles := make([]string, 0, len(frames))

	for i, frame := range frames {
		if len(frame.Data) == 0 {
			continue
		}

		path := filepath.Join(sessionDir, fmt.Sprintf("frame_%06d.jpg", i))
		if err := os.WriteFile(path, frame.Data, 0644); err != nil {
			return nil, fmt.Errorf("フレーム画像の保存に失敗 (%s): %w", filepath.Base(path), err)
		}
		imageFiles = append(imageFiles, path)
	}

	return imageFiles, nil
}

// createNewVideo は画像列から動画ファイルを作成する
func (vg *VideoGenerator) createNewVideo(ctx context.Context, videoPath string, imageFiles []string, quality int) error {
	if len(imageFiles) == 0 {
		return fmt.Errorf("画像ファイルがありません")
	}

	listFile := filepath.Join(filepath.Dir(imageFiles[0]), "images.txt")
	if err := os.WriteFile(listFile, []byte(vg.imageList(imageFiles)), 0644); err != nil {
		return fmt.Errorf("画像リストの作成に失敗: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-r", strconv.Itoa(vg.fps),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", qualityToCRF(quality),
		"-pix_fmt", "yuv420p",
		"-f", "mp4",
		"-y",
		videoPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("新規動画作成に失敗: %w (output: %s)", err, string(output))
	}
	return nil
}

// appendToVideo は追加分の動画を作成して既存の動画に連結する
func (vg *VideoGenerator) appendToVideo(ctx context.Context, videoPath string, imageFiles []string, quality int) error {
	tempVideoPath := videoPath + ".part"
	if err := vg.createNewVideo(ctx, tempVideoPath, imageFiles, quality); err != nil {
		return fmt.Errorf("一時動画の作成に失敗: %w", err)
	}
	defer func() {
		_ = os.Remove(tempVideoPath)
	}()

	listFile := filepath.Join(filepath.Dir(videoPath), "concat_list.txt")
	listContent := fmt.Sprintf("file '%s'\nfile '%s'\n", videoPath, tempVideoPath)
	if err := os.WriteFile(listFile, []byte(listContent), 0644); err != nil {
		return fmt.Errorf("結合リストの作成に失敗: %w", err)
	}
	defer func() {
		_ = os.Remove(listFile)
	}()

	outputPath := videoPath + ".new"
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		"-f", "mp4",
		"-y",
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("動画結合に失敗: %w (output: %s)", err, string(output))
	}

	if err := os.Rename(outputPath, videoPath); err != nil {
		return fmt.Errorf("ファイル置き換えに失敗: %w", err)
	}
	return nil
}

// imageList はconcat demuxer用の画像リストを作る
func (vg *VideoGenerator) imageList(imageFiles []string) string {
	var b strings.Builder
	duration := 1.0 / float64(vg.fps)
	for _, imageFile := range imageFiles {
		fmt.Fprintf(&b, "file '%s'\nduration %.3f\n", imageFile, duration)
	}

	// 最後のフレームは duration が無視されるため再度指定する
	if len(imageFiles) > 0 {
		fmt.Fprintf(&b, "file '%s'\n", imageFiles[len(imageFiles)-1])
	}
	return b.String()
}

// qualityToCRF は品質設定をFFmpegのCRF値に変換する
func qualityToCRF(quality int) string {
	// 品質1(低) -> CRF28, 品質5(高) -> CRF18
	crf := 28.0 - float64(quality-1)*2.5
	if crf < 18 {
		crf = 18
	}
	if crf > 28 {
		crf = 28
	}
	return strconv.FormatFloat(crf, 'f', 1, 64)
}

// ValidateFFmpeg はFFmpegが利用可能かチェックする
func ValidateFFmpeg(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := exec.CommandContext(ctx, "ffmpeg", "-version").Run(); err != nil {
		return fmt.Errorf("FFmpegが見つかりません。インストールしてください: %w", err)
	}
	return nil
}
