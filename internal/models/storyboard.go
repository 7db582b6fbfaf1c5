// internal/models/storyboard.go
package models

import (
	"time"
)

// Storyboard 表示跨七个步骤逐渐累积的结构化故事数据
// 一个 Storyboard 对应且仅对应一个 Workflow（共享同一 ID）
type Storyboard struct {
	ID         string          `json:"id"`
	Summary    string          `json:"summary"`
	Acts       []Act           `json:"acts"`
	Characters []Character     `json:"characters"`
	Scenes     []SceneCard     `json:"scenes"`
	Audio      AudioSettings   `json:"audio"`
	Style      StyleSettings   `json:"style"`
	Caption    CaptionSettings `json:"caption"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Act 表示故事中的一幕，持有其场景的有序 ID 列表
type Act struct {
	ActNumber int      `json:"act_number"`
	Title     string   `json:"title"`
	Synopsis  string   `json:"synopsis,omitempty"`
	SceneIDs  []string `json:"scene_ids"`
}

// Character 表示一个角色记录
// VoiceID 与 FaceReferenceURL 用于编译期的说话人绑定
type Character struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	VoiceID          string `json:"voice_id,omitempty"`
	FaceReferenceURL string `json:"face_reference_url,omitempty"`
}

// SceneCard 表示一个分镜场景
// Title/ActNumber/SceneNumber 为机器生成字段
// ImagePrompt/Dialogue/CustomImageURL/CharacterIDs 为用户可编辑字段
type SceneCard struct {
	ID             string         `json:"id"`
	ActNumber      int            `json:"act_number"`
	SceneNumber    int            `json:"scene_number"`
	Title          string         `json:"title"`
	ImagePrompt    string         `json:"image_prompt,omitempty"`
	CustomImageURL string         `json:"custom_image_url,omitempty"`
	CharacterIDs   []string       `json:"character_ids,omitempty"`
	Dialogue       []DialogueLine `json:"dialogue,omitempty"`
}

// DialogueLine 表示一句台词
// Speaker 是自由文本标签，不保证与角色名完全一致
type DialogueLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Emotion string `json:"emotion,omitempty"`
}

// AudioSettings 保存 BGM 选择与每角色的配音覆盖
type AudioSettings struct {
	// BGMID 为曲库选择，字面量 "none" 表示显式关闭背景音乐
	BGMID string `json:"bgm_id,omitempty"`
	// BGMURL 为自定义音轨覆盖，优先于 BGMID
	BGMURL string `json:"bgm_url,omitempty"`
	// BGMVolume 为空时编译器采用默认音量
	BGMVolume *float64 `json:"bgm_volume,omitempty"`
	// VoiceOverrides 角色ID -> 配音ID，覆盖角色记录上的默认配音
	VoiceOverrides map[string]string `json:"voice_overrides,omitempty"`
}

// StyleSettings 保存画风设置
type StyleSettings struct {
	Preset       string `json:"preset,omitempty"`
	CustomPrompt string `json:"custom_prompt,omitempty"`
}

// CaptionSettings 保存字幕设置
type CaptionSettings struct {
	Enabled bool     `json:"enabled"`
	Lang    string   `json:"lang,omitempty"`
	Styles  []string `json:"styles,omitempty"`
}

// FindCharacterByID 按 ID 查找角色
func (sb *Storyboard) FindCharacterByID(id string) *Character {
	for i := range sb.Characters {
		if sb.Characters[i].ID == id {
			return &sb.Characters[i]
		}
	}
	return nil
}

// ScenesByID 构建场景 ID 索引
func (sb *Storyboard) ScenesByID() map[string]*SceneCard {
	index := make(map[string]*SceneCard, len(sb.Scenes))
	for i := range sb.Scenes {
		index[sb.Scenes[i].ID] = &sb.Scenes[i]
	}
	return index
}
