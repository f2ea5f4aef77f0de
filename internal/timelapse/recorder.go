package timelapse

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"arscope/internal/encoder"
	"arscope/internal/preview"
)

// Recorder はプレビューのフレームを一定間隔で間引いてタイムラプス動画にする
//
// preview.FrameSink を実装する。OnFrame はワーカー上で呼ばれるため、
// エンコードと動画生成は Recorder 自身のゴルーチンで行う。
type Recorder struct {
	config  Config
	encoder encoder.Encoder
	writer  VideoWriter
	now     func() time.Time

	frames chan preview.Frame

	// writeMu は動画の書き出しを直列化する
	writeMu sync.Mutex

	mu            sync.RWMutex
	running       bool
	frameBuffer   []Frame
	currentVideo  string
	lastSample    time.Time
	lastUpdate    time.Time
	lastErr       error
	framesSampled uint64
	framesSkipped uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRecorder は新しいRecorderを作成する
func NewRecorder(config Config, enc encoder.Encoder, writer VideoWriter) *Recorder {
	if config.CaptureInterval <= 0 {
		config.CaptureInterval = DefaultConfig().CaptureInterval
	}
	if config.UpdateInterval <= 0 {
		config.UpdateInterval = DefaultConfig().UpdateInterval
	}
	if config.MaxFrameBuffer <= 0 {
		config.MaxFrameBuffer = DefaultConfig().MaxFrameBuffer
	}
	if enc == nil {
		enc = encoder.NewJPEGEncoder(config.JPEGQuality)
	}
	if writer == nil {
		writer = NewVideoGenerator("")
	}

	return &Recorder{
		config:  config,
		encoder: enc,
		writer:  writer,
		now:     time.Now,
		frames:  make(chan preview.Frame, 1),
	}
}

// Start はエンコードと動画更新のゴルーチンを開始する
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("タイムラプスは既に開始されています")
	}
	if err := os.MkdirAll(r.config.OutputDir, 0755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗: %w", err)
	}

	r.running = true
	r.stopCh = make(chan struct{})

	r.wg.Add(1)
	go r.encodeFrames(ctx)

	r.wg.Add(1)
	go r.videoUpdateScheduler(ctx)

	log.Printf("タイムラプスを開始 (間隔: %v, 出力先: %s)", r.config.CaptureInterval, r.config.OutputDir)
	return nil
}

// Stop はゴルーチンを停止し、残りのフレームで動画を更新する
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.stopCh)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("タイムラプスの停止待ちが中断されました: %v", ctx.Err())
		return ctx.Err()
	}

	if err := r.updateVideo(ctx); err != nil {
		log.Printf("停止時の動画更新に失敗: %v", err)
		return err
	}

	log.Println("タイムラプスを停止")
	return nil
}

// OnFrame はプレビューのフレームを受け取る。撮影間隔に満たないフレームは捨てる
func (r *Recorder) OnFrame(frame preview.Frame) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	ts := frame.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	if !r.lastSample.IsZero() && ts.Sub(r.lastSample) < r.config.CaptureInterval {
		r.framesSkipped++
		r.mu.Unlock()
		return
	}
	r.lastSample = ts
	r.mu.Unlock()

	// エンコード待ちがあれば新しいフレームで置き換える
	select {
	case r.frames <- frame:
	default:
		select {
		case <-r.frames:
		default:
		}
		select {
		case r.frames <- frame:
		default:
		}
	}
}

// encodeFrames はフレームをJPEGにしてバッファに追加する
func (r *Recorder) encodeFrames(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case frame := <-r.frames:
			if err := r.addFrame(frame); err != nil {
				log.Printf("タイムラプスフレームの追加に失敗: %v", err)
			}
		}
	}
}

// addFrame は1フレームをエンコードしてバッファに追加する
func (r *Recorder) addFrame(frame preview.Frame) error {
	data, err := r.encoder.Encode(frame.Data, frame.Width, frame.Height, frame.Format)
	if err != nil {
		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()
		return fmt.Errorf("JPEG変換に失敗: %w", err)
	}

	ts := frame.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.frameBuffer = append(r.frameBuffer, Frame{Timestamp: ts, Sequence: frame.Sequence, Data: data})
	if len(r.frameBuffer) > r.config.MaxFrameBuffer {
		// 古いフレームを削除（FIFO）
		r.frameBuffer = r.frameBuffer[1:]
	}
	r.framesSampled++
	return nil
}

// videoUpdateScheduler は定期更新と日次ローテーションを行う
func (r *Recorder) videoUpdateScheduler(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.UpdateInterval)
	defer ticker.Stop()

	midnightTimer := time.NewTimer(time.Until(nextMidnight(r.now())))
	defer midnightTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.updateVideo(ctx); err != nil {
				log.Printf("動画更新エラー: %v", err)
			}
		case <-midnightTimer.C:
			if err := r.rotateVideo(ctx); err != nil {
				log.Printf("動画ローテーションエラー: %v", err)
			}
			midnightTimer.Reset(time.Until(nextMidnight(r.now())))
		}
	}
}

// updateVideo はバッファのフレームで現在の動画を延長する
//
// 動画の書き出し中は r.mu を保持しないため、OnFrame はFFmpegの実行を待たない。
func (r *Recorder) updateVideo(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	frames, videoPath := r.takeFramesLocked()
	r.mu.Unlock()

	return r.writeFrames(ctx, videoPath, frames)
}

// takeFramesLocked はバッファのフレームと書き出し先を取り出す。呼び出し側が r.mu を保持していること
func (r *Recorder) takeFramesLocked() ([]Frame, string) {
	if len(r.frameBuffer) == 0 {
		return nil, ""
	}

	frames := r.frameBuffer
	r.frameBuffer = nil
	if r.currentVideo == "" {
		r.currentVideo = videoFilename(frames[0].Timestamp)
	}
	return frames, filepath.Join(r.config.OutputDir, r.currentVideo)
}

// writeFrames はロックを持たずに動画を延長し、結果を記録する。失敗したフレームはバッファに戻す
func (r *Recorder) writeFrames(ctx context.Context, videoPath string, frames []Frame) error {
	if len(frames) == 0 {
		return nil
	}

	err := r.writer.ExtendVideo(ctx, videoPath, frames, r.config.Quality)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.lastErr = err
		// 次回の更新で再試行する
		r.frameBuffer = append(frames, r.frameBuffer...)
		if over := len(r.frameBuffer) - r.config.MaxFrameBuffer; over > 0 {
			r.frameBuffer = r.frameBuffer[over:]
		}
		return fmt.Errorf("動画の延長に失敗: %w", err)
	}

	r.lastUpdate = r.now()
	return nil
}

// rotateVideo は残りのフレームを書き出してから新しい日付の動画に切り替える
func (r *Recorder) rotateVideo(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	frames, videoPath := r.takeFramesLocked()
	r.currentVideo = videoFilename(r.now())
	next := r.currentVideo
	r.mu.Unlock()

	if err := r.writeFrames(ctx, videoPath, frames); err != nil {
		log.Printf("ローテーション前の最終更新に失敗: %v", err)
	}

	log.Printf("日次ローテーション実行: %s", next)
	return nil
}

// videoFilename は日付から動画ファイル名を生成する
func videoFilename(t time.Time) string {
	return fmt.Sprintf("timelapse_%s.mp4", t.Format("2006-01-02"))
}

// nextMidnight は次の0時の時刻を返す
func nextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}

// GetVideos は出力ディレクトリの動画一覧を取得する
func (r *Recorder) GetVideos() ([]Video, error) {
	r.mu.RLock()
	current := r.currentVideo
	outputDir := r.config.OutputDir
	r.mu.RUnlock()

	var videos []Video
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return videos, nil
		}
		return nil, fmt.Errorf("ディレクトリの読み取りに失敗: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".mp4" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			log.Printf("ファイル情報の取得に失敗: %v", err)
			continue
		}

		status := StatusCompleted
		if entry.Name() == current {
			status = StatusRecording
		}
		videos = append(videos, Video{
			Date:     info.ModTime(),
			FilePath: filepath.Join(outputDir, entry.Name()),
			FileSize: info.Size(),
			Status:   status,
		})
	}

	return videos, nil
}

// GetStatus は現在の状態を取得する
func (r *Recorder) GetStatus() StatusInfo {
	videos, err := r.GetVideos()
	if err != nil {
		log.Printf("動画一覧の取得に失敗: %v", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	info := StatusInfo{
		Enabled:         r.config.Enabled,
		Running:         r.running,
		CurrentVideo:    r.currentVideo,
		FrameBufferSize: len(r.frameBuffer),
		FramesSampled:   r.framesSampled,
		FramesSkipped:   r.framesSkipped,
		TotalVideos:     len(videos),
		LastUpdate:      r.lastUpdate,
	}
	for _, v := range videos {
		info.StorageUsed += v.FileSize
	}
	if r.lastErr != nil {
		info.LastError = r.lastErr.Error()
	}
	return info
}

// GetConfig は現在の設定を取得する
func (r *Recorder) GetConfig() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}
