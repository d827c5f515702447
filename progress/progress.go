package progress

// Stage identifies one step of the task state machine. The zero value is not
// a valid stage.
type Stage string

const (
	StagePending      Stage = "pending"
	StageFetching     Stage = "fetching"
	StageExtracting   Stage = "extracting"
	StageTranscribing Stage = "transcribing"
	StagePolishing    Stage = "polishing"
	StageSummarizing  Stage = "summarizing"
	StageAnalyzing    Stage = "analyzing"
	StageWriting      Stage = "writing"
	StageCompleted    Stage = "completed"
)

// Client-facing stage labels. The set is closed; the front-end keys styling
// off these exact strings.
const (
	LabelQueued     = "等待处理"
	LabelUploaded   = "已上传"
	LabelFetchInfo  = "获取视频信息"
	LabelDownload   = "下载音频"
	LabelExtract    = "处理音频"
	LabelTranscribe = "语音转文字"
	LabelPolish     = "生成逐字稿"
	LabelSummarize  = "生成总结报告"
	LabelAnalyze    = "内容分析"
	LabelWrite      = "保存结果"
	LabelDone       = "完成"
)

// span is the progress window a stage covers. A task entering a stage sits at
// Lo; it reaches Hi the moment the next stage begins.
type span struct {
	Lo, Hi int
}

var spans = map[Stage]span{
	StagePending:      {0, 0},
	StageFetching:     {0, 15},
	StageExtracting:   {15, 25},
	StageTranscribing: {25, 70},
	StagePolishing:    {70, 80},
	StageSummarizing:  {80, 90},
	StageAnalyzing:    {90, 97},
	StageWriting:      {97, 100},
	StageCompleted:    {100, 100},
}

// Label returns the client-facing label for a stage. Fetching covers two
// labels (metadata then download); this returns the one used on stage entry.
func Label(s Stage) string {
	switch s {
	case StagePending:
		return LabelQueued
	case StageFetching:
		return LabelFetchInfo
	case StageExtracting:
		return LabelExtract
	case StageTranscribing:
		return LabelTranscribe
	case StagePolishing:
		return LabelPolish
	case StageSummarizing:
		return LabelSummarize
	case StageAnalyzing:
		return LabelAnalyze
	case StageWriting:
		return LabelWrite
	case StageCompleted:
		return LabelDone
	}
	return string(s)
}

// Entry returns the progress value a task shows on entering the stage.
func Entry(s Stage) int {
	return spans[s].Lo
}

// Projection maps a stage plus an intra-stage completion count onto the
// 0..100 progress scale. Only transcribing advances within its span (linearly
// over done/total segments); every other stage reports its entry value until
// the next stage begins. Results are clamped into the stage's span so a
// miscounted done can never move progress backwards or past the stage.
func Projection(s Stage, done, total int) int {
	sp, ok := spans[s]
	if !ok {
		return 0
	}
	if s != StageTranscribing || total <= 0 {
		return sp.Lo
	}
	if done < 0 {
		done = 0
	}
	if done > total {
		done = total
	}
	return sp.Lo + (sp.Hi-sp.Lo)*done/total
}
