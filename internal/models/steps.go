// internal/models/steps.go
package models

// 每个步骤的输入/输出载荷都是显式的结构体，
// 合并逻辑按字段逐一处理，避免通用深合并吞掉数组语义。
// 步骤 N 的 Output 记录本步骤被接受后的内容快照，
// 外加为下一步骤预填充的生成建议。

// ----------------------------------------
// 步骤 1：故事前提
// ----------------------------------------

// Step1Input 是前提页面的规范屏幕状态
// 对步骤 1 来说 input 本身就是画面的完整快照
type Step1Input struct {
	Title    string   `json:"title,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	Genre    string   `json:"genre,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Language string   `json:"language,omitempty"`
}

// Step1Output 保存步骤 1 接受后的画面快照与幕结构建议
type Step1Output struct {
	// Snapshot 存在时会在重新编辑步骤 1 时整体取代新输入
	Snapshot *Step1Input `json:"snapshot,omitempty"`
	// Acts 为步骤 2 的预填充建议
	Acts []ActDraft `json:"acts,omitempty"`
}

// ----------------------------------------
// 步骤 2：幕结构
// ----------------------------------------

// ActDraft 表示编辑中的一幕
type ActDraft struct {
	ActNumber int    `json:"act_number"`
	Title     string `json:"title"`
	Synopsis  string `json:"synopsis,omitempty"`
}

// Step2Input 幕结构页面的部分更新载荷
type Step2Input struct {
	Acts    []ActDraft `json:"acts,omitempty"`
	Summary *string    `json:"summary,omitempty"`
}

// Step2Output 保存接受后的幕结构与角色/画风建议
type Step2Output struct {
	Acts       []ActDraft       `json:"acts,omitempty"`
	Summary    *string          `json:"summary,omitempty"`
	Characters []CharacterDraft `json:"characters,omitempty"`
	Style      *StyleDraft      `json:"style,omitempty"`
}

// ----------------------------------------
// 步骤 3：角色与画风
// ----------------------------------------

// CharacterDraft 表示编辑中的角色
type CharacterDraft struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	VoiceID          string `json:"voice_id,omitempty"`
	FaceReferenceURL string `json:"face_reference_url,omitempty"`
}

// StyleDraft 表示编辑中的画风设置
type StyleDraft struct {
	Preset       string `json:"preset,omitempty"`
	CustomPrompt string `json:"custom_prompt,omitempty"`
}

// Step3Input 角色与画风页面的部分更新载荷
type Step3Input struct {
	Characters []CharacterDraft `json:"characters,omitempty"`
	Style      *StyleDraft      `json:"style,omitempty"`
}

// Step3Output 保存接受后的角色/画风与分镜建议
type Step3Output struct {
	Characters []CharacterDraft `json:"characters,omitempty"`
	Style      *StyleDraft      `json:"style,omitempty"`
	Scenes     []SceneCard      `json:"scenes,omitempty"`
}

// ----------------------------------------
// 步骤 4：分镜脚本
// ----------------------------------------

// Step4Input 分镜页面载荷，场景按 ID 合并而非整体替换
type Step4Input struct {
	Scenes []SceneCard `json:"scenes,omitempty"`
}

// Step4Output 保存接受后的完整场景列表与配音建议
type Step4Output struct {
	Scenes []SceneCard `json:"scenes,omitempty"`
	// Voices 角色ID -> 建议配音ID，为步骤 5 预填充
	Voices map[string]string `json:"voices,omitempty"`
}

// ----------------------------------------
// 步骤 5：配音分配
// ----------------------------------------

// Step5Input 配音页面的部分更新载荷
type Step5Input struct {
	// Voices 角色ID -> 配音ID
	Voices map[string]string `json:"voices,omitempty"`
}

// Step5Output 保存接受后的配音表与音频/字幕建议
type Step5Output struct {
	Voices  map[string]string `json:"voices,omitempty"`
	Audio   *AudioDraft       `json:"audio,omitempty"`
	Caption *CaptionDraft     `json:"caption,omitempty"`
}

// ----------------------------------------
// 步骤 6：音频与字幕
// ----------------------------------------

// AudioDraft 表示编辑中的音频设置
type AudioDraft struct {
	BGMID     string   `json:"bgm_id,omitempty"`
	BGMURL    string   `json:"bgm_url,omitempty"`
	BGMVolume *float64 `json:"bgm_volume,omitempty"`
}

// CaptionDraft 表示编辑中的字幕设置
type CaptionDraft struct {
	Enabled *bool    `json:"enabled,omitempty"`
	Lang    string   `json:"lang,omitempty"`
	Styles  []string `json:"styles,omitempty"`
}

// Step6Input 音频与字幕页面的部分更新载荷
type Step6Input struct {
	Audio   *AudioDraft   `json:"audio,omitempty"`
	Caption *CaptionDraft `json:"caption,omitempty"`
}

// Step6Output 保存接受后的音频/字幕与确认页建议
type Step6Output struct {
	Audio   *AudioDraft   `json:"audio,omitempty"`
	Caption *CaptionDraft `json:"caption,omitempty"`
	// Confirm 为步骤 7 预填充的标题/描述
	Confirm *Step7Input `json:"confirm,omitempty"`
}

// ----------------------------------------
// 步骤 7：最终确认
// ----------------------------------------

// Step7Input 最终确认载荷
type Step7Input struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Confirmed   bool    `json:"confirmed,omitempty"`
}

// Step7Output 保存编译交付回执
type Step7Output struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	// VideoID 为外部渲染器接手后的视频标识
	VideoID string `json:"video_id,omitempty"`
	// BeatCount 编译产出的 beat 数量，0 表示无可渲染内容
	BeatCount int `json:"beat_count"`
}
