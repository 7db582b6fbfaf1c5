// internal/models/renderspec.go
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RenderSpecification 是编译器的最终产物，交给外部渲染器消费
// 字段形状对渲染器是位精确的契约，不可随意调整
type RenderSpecification struct {
	Beats         []Beat         `json:"beats"`
	SpeechParams  SpeechParams   `json:"speechParams"`
	ImageParams   ImageParams    `json:"imageParams"`
	AudioParams   *AudioParams   `json:"audioParams,omitempty"`
	CaptionParams *CaptionParams `json:"captionParams,omitempty"`
}

// Beat 表示一条渲染单元：一句台词加上所属场景的画面提示词
type Beat struct {
	Text        string `json:"text"`
	Speaker     string `json:"speaker"`
	ImagePrompt string `json:"imagePrompt"`
}

// SpeechParams 保存说话人表
type SpeechParams struct {
	Speakers SpeakerTable `json:"speakers"`
}

// SpeakerBinding 表示一个说话人标签的配音绑定
type SpeakerBinding struct {
	VoiceID     string            `json:"voiceId"`
	DisplayName map[string]string `json:"displayName"`
}

// SpeakerTable 是按首次出现顺序排列的说话人表
// JSON 序列化为对象，键序保持插入顺序（Go 原生 map 会按键排序，
// 这里必须自定义序列化以满足编译确定性）
type SpeakerTable struct {
	labels   []string
	bindings map[string]SpeakerBinding
}

// NewSpeakerTable 创建空的说话人表
func NewSpeakerTable() SpeakerTable {
	return SpeakerTable{bindings: make(map[string]SpeakerBinding)}
}

// Set 写入一个说话人绑定，首次写入的标签追加到有序列表末尾
func (t *SpeakerTable) Set(label string, binding SpeakerBinding) {
	if t.bindings == nil {
		t.bindings = make(map[string]SpeakerBinding)
	}
	if _, exists := t.bindings[label]; !exists {
		t.labels = append(t.labels, label)
	}
	t.bindings[label] = binding
}

// Get 按标签读取绑定
func (t *SpeakerTable) Get(label string) (SpeakerBinding, bool) {
	b, ok := t.bindings[label]
	return b, ok
}

// Labels 返回按首次出现顺序排列的标签列表
func (t *SpeakerTable) Labels() []string {
	return t.labels
}

// Len 返回表中说话人数量
func (t *SpeakerTable) Len() int {
	return len(t.labels)
}

// MarshalJSON 按插入顺序输出对象键
func (t SpeakerTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, label := range t.labels {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(label)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(t.bindings[label])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 读取对象并按 token 顺序恢复插入序
func (t *SpeakerTable) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("speaker table: expected object, got %v", tok)
	}

	*t = NewSpeakerTable()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		label, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("speaker table: non-string key %v", keyTok)
		}
		var binding SpeakerBinding
		if err := dec.Decode(&binding); err != nil {
			return err
		}
		t.Set(label, binding)
	}
	return nil
}

// ImageParams 保存画面生成参数
type ImageParams struct {
	Style string `json:"style"`
	Model string `json:"model"`
	// Images 角色名 -> 面部参考图 URL
	Images map[string]string `json:"images,omitempty"`
}

// BGMTrack 表示一条背景音乐引用
type BGMTrack struct {
	Kind string `json:"kind"` // 目前仅 "url"
	URL  string `json:"url"`
}

// AudioParams 保存背景音乐参数，整体缺省表示无背景音轨
type AudioParams struct {
	BGM       BGMTrack `json:"bgm"`
	BGMVolume float64  `json:"bgmVolume"`
}

// CaptionParams 保存字幕参数，整体缺省表示关闭字幕
type CaptionParams struct {
	Lang   string   `json:"lang"`
	Styles []string `json:"styles"`
}

// IsEmpty 检查编译结果是否没有任何可渲染内容
// 空结果是合法状态（"还没有可渲染的东西"），不是错误
func (rs *RenderSpecification) IsEmpty() bool {
	return len(rs.Beats) == 0
}
