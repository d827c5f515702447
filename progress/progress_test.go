package progress

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntryValuesMatchStageSpans(t *testing.T) {
	require.Equal(t, 0, Entry(StageFetching))
	require.Equal(t, 15, Entry(StageExtracting))
	require.Equal(t, 25, Entry(StageTranscribing))
	require.Equal(t, 70, Entry(StagePolishing))
	require.Equal(t, 80, Entry(StageSummarizing))
	require.Equal(t, 90, Entry(StageAnalyzing))
	require.Equal(t, 97, Entry(StageWriting))
	require.Equal(t, 100, Entry(StageCompleted))
}

func TestProjectionTranscribingIsLinearOverSegments(t *testing.T) {
	require.Equal(t, 25, Projection(StageTranscribing, 0, 3))
	require.Equal(t, 40, Projection(StageTranscribing, 1, 3))
	require.Equal(t, 55, Projection(StageTranscribing, 2, 3))
	require.Equal(t, 70, Projection(StageTranscribing, 3, 3))

	require.Equal(t, 70, Projection(StageTranscribing, 1, 1))
}

func TestProjectionClampsBadCounts(t *testing.T) {
	require.Equal(t, 25, Projection(StageTranscribing, -5, 3))
	require.Equal(t, 70, Projection(StageTranscribing, 9, 3))
	require.Equal(t, 25, Projection(StageTranscribing, 1, 0), "unknown total stays at stage entry")
}

func TestProjectionNonTranscribingStagesIgnoreCounts(t *testing.T) {
	require.Equal(t, 80, Projection(StageSummarizing, 2, 3))
	require.Equal(t, 0, Projection(StageFetching, 1, 1))
}

func TestProjectionIsMonotonicThroughAPipelineRun(t *testing.T) {
	order := []Stage{
		StagePending, StageFetching, StageExtracting, StageTranscribing,
		StagePolishing, StageSummarizing, StageAnalyzing, StageWriting, StageCompleted,
	}
	last := -1
	for _, stage := range order {
		p := Projection(stage, 0, 0)
		require.GreaterOrEqual(t, p, last, "stage %s must not move progress backwards", stage)
		last = p
		if stage == StageTranscribing {
			for done := 0; done <= 10; done++ {
				p = Projection(stage, done, 10)
				require.GreaterOrEqual(t, p, last)
				last = p
			}
		}
	}
	require.Equal(t, 100, last)
}

func TestLabelsAreTheClosedSet(t *testing.T) {
	require.Equal(t, "获取视频信息", Label(StageFetching))
	require.Equal(t, "处理音频", Label(StageExtracting))
	require.Equal(t, "语音转文字", Label(StageTranscribing))
	require.Equal(t, "生成逐字稿", Label(StagePolishing))
	require.Equal(t, "生成总结报告", Label(StageSummarizing))
	require.Equal(t, "内容分析", Label(StageAnalyzing))
	require.Equal(t, "保存结果", Label(StageWriting))
	require.Equal(t, "完成", Label(StageCompleted))
}
