// internal/services/script_compiler.go
package services

import (
	"fmt"
	"sort"

	"github.com/Corphon/StoryReelMCP/internal/models"
)

// 编译期默认值，对渲染器可见，修改前先确认渲染端兼容
const (
	// DefaultImageStyle 未设置画风时的默认风格串
	DefaultImageStyle = "anime style, cinematic lighting, high detail"
	// DefaultImageModel 画面生成模型标识
	DefaultImageModel = "sdxl-anime-v2"
	// BGMNoneSentinel 显式关闭背景音乐的字面量
	BGMNoneSentinel = "none"
	// DefaultBGMVolume 未指定音量时的默认值
	DefaultBGMVolume = 0.4
	// DefaultCaptionLang 未指定字幕语言时的默认值
	DefaultCaptionLang = "en"
)

// DefaultCaptionStyles 启用字幕但未自定义样式时的默认样式表
var DefaultCaptionStyles = []string{
	"font-family: 'Noto Sans'",
	"font-size: 42px",
	"color: #ffffff",
	"text-shadow: 0 0 4px #000000",
}

// 画风预设到风格串的映射，未知预设原样透传
var stylePresets = map[string]string{
	"anime":      DefaultImageStyle,
	"realistic":  "photorealistic, natural lighting, shallow depth of field",
	"watercolor": "watercolor painting, soft brush strokes, pastel palette",
	"pixel":      "pixel art, 16-bit, vibrant colors",
}

// 曲库中内置的背景音乐
var bgmLibrary = map[string]string{
	"calm_piano":   "https://assets.storyreel.dev/bgm/calm_piano.mp3",
	"epic_strings": "https://assets.storyreel.dev/bgm/epic_strings.mp3",
	"lofi_beat":    "https://assets.storyreel.dev/bgm/lofi_beat.mp3",
	"dark_ambient": "https://assets.storyreel.dev/bgm/dark_ambient.mp3",
}

// ScriptCompiler 把累积完成的 Storyboard 折叠成一份渲染规格
//
// 编译是纯函数：相同的 Storyboard 永远产出逐字节相同的 beats 与
// 说话人表（说话人键序等于 beats 中的首次出现顺序）。
// beats 和 speakers 每次编译都重新派生，流程中途从不落盘半成品，
// 避免源数据与派生数据漂移。
type ScriptCompiler struct {
	resolver *SpeakerResolver
}

// NewScriptCompiler 创建脚本编译器
func NewScriptCompiler(resolver *SpeakerResolver) *ScriptCompiler {
	if resolver == nil {
		resolver = NewSpeakerResolver("")
	}
	return &ScriptCompiler{resolver: resolver}
}

// Compile 编译渲染规格
// 结构性缺失（比如完全没有幕）不报错，返回空 beats 的规格，
// 调用方据此识别"还没有可渲染的内容"
func (c *ScriptCompiler) Compile(sb *models.Storyboard) *models.RenderSpecification {
	spec := &models.RenderSpecification{
		Beats: []models.Beat{},
		SpeechParams: models.SpeechParams{
			Speakers: models.NewSpeakerTable(),
		},
	}

	// Step A: 幕 → 场景（幕/场景序）→ 台词（创作序）摊平成 beats
	spec.Beats = c.flattenBeats(sb)

	// Step B: 解析 beats 中实际出现的说话人标签
	// 从不说话的角色不进说话人表
	lang := sb.Caption.Lang
	if lang == "" {
		lang = DefaultCaptionLang
	}
	seen := make(map[string]bool)
	for _, beat := range spec.Beats {
		if seen[beat.Speaker] {
			continue
		}
		seen[beat.Speaker] = true

		resolved := c.resolver.Resolve(beat.Speaker, sb.Characters, sb.Audio.VoiceOverrides)
		spec.SpeechParams.Speakers.Set(beat.Speaker, models.SpeakerBinding{
			VoiceID:     resolved.VoiceID,
			DisplayName: map[string]string{lang: resolved.DisplayName},
		})
	}

	// Step C: 画风与面部参考
	spec.ImageParams = c.buildImageParams(sb)

	// Step D: 背景音乐，缺失或显式 "none" 时整体省略
	spec.AudioParams = c.buildAudioParams(&sb.Audio)

	// Step E: 字幕，未启用时整体省略
	spec.CaptionParams = c.buildCaptionParams(&sb.Caption)

	return spec
}

// flattenBeats 按幕序、场景序、台词创作序产出有序的 beats
// 每条 beat 携带场景级的画面提示词（不是逐句的）
func (c *ScriptCompiler) flattenBeats(sb *models.Storyboard) []models.Beat {
	beats := []models.Beat{}
	if len(sb.Acts) == 0 {
		return beats
	}

	sceneIndex := sb.ScenesByID()

	for _, act := range sb.Acts {
		for _, scene := range c.scenesForAct(sb, &act, sceneIndex) {
			for _, line := range scene.Dialogue {
				beats = append(beats, models.Beat{
					Text:        line.Text,
					Speaker:     line.Speaker,
					ImagePrompt: scene.ImagePrompt,
				})
			}
		}
	}
	return beats
}

// scenesForAct 返回一幕中按序排列的场景
// 优先使用幕上记录的场景ID顺序，没有时退回幕号匹配加场景号排序
func (c *ScriptCompiler) scenesForAct(sb *models.Storyboard, act *models.Act, index map[string]*models.SceneCard) []*models.SceneCard {
	if len(act.SceneIDs) > 0 {
		scenes := make([]*models.SceneCard, 0, len(act.SceneIDs))
		for _, id := range act.SceneIDs {
			if scene, exists := index[id]; exists {
				scenes = append(scenes, scene)
			}
		}
		return scenes
	}

	var scenes []*models.SceneCard
	for i := range sb.Scenes {
		if sb.Scenes[i].ActNumber == act.ActNumber {
			scenes = append(scenes, &sb.Scenes[i])
		}
	}
	sort.SliceStable(scenes, func(i, j int) bool {
		return scenes[i].SceneNumber < scenes[j].SceneNumber
	})
	return scenes
}

// buildImageParams 产出画面参数
// 自定义风格串优先，其次预设映射，最后落到文档化的默认风格
func (c *ScriptCompiler) buildImageParams(sb *models.Storyboard) models.ImageParams {
	style := sb.Style.CustomPrompt
	if style == "" && sb.Style.Preset != "" {
		if mapped, exists := stylePresets[sb.Style.Preset]; exists {
			style = mapped
		} else {
			style = sb.Style.Preset
		}
	}
	if style == "" {
		style = DefaultImageStyle
	}

	params := models.ImageParams{
		Style: style,
		Model: DefaultImageModel,
	}

	for i := range sb.Characters {
		ch := &sb.Characters[i]
		if ch.FaceReferenceURL == "" {
			continue
		}
		if params.Images == nil {
			params.Images = make(map[string]string)
		}
		params.Images[ch.Name] = ch.FaceReferenceURL
	}
	return params
}

// buildAudioParams 产出背景音乐参数
// 无选择或显式 "none" 时返回 nil：宁可没有音轨也不造一条静音占位
func (c *ScriptCompiler) buildAudioParams(audio *models.AudioSettings) *models.AudioParams {
	if audio.BGMID == BGMNoneSentinel {
		return nil
	}

	url := audio.BGMURL
	if url == "" && audio.BGMID != "" {
		if libraryURL, exists := bgmLibrary[audio.BGMID]; exists {
			url = libraryURL
		} else {
			url = fmt.Sprintf("https://assets.storyreel.dev/bgm/%s.mp3", audio.BGMID)
		}
	}
	if url == "" {
		return nil
	}

	volume := DefaultBGMVolume
	if audio.BGMVolume != nil {
		volume = *audio.BGMVolume
	}

	return &models.AudioParams{
		BGM:       models.BGMTrack{Kind: "url", URL: url},
		BGMVolume: volume,
	}
}

// buildCaptionParams 产出字幕参数，未启用时返回 nil
func (c *ScriptCompiler) buildCaptionParams(caption *models.CaptionSettings) *models.CaptionParams {
	if !caption.Enabled {
		return nil
	}

	lang := caption.Lang
	if lang == "" {
		lang = DefaultCaptionLang
	}

	styles := caption.Styles
	if len(styles) == 0 {
		styles = append([]string(nil), DefaultCaptionStyles...)
	}

	return &models.CaptionParams{Lang: lang, Styles: styles}
}
