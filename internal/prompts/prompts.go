// Package prompts holds the default extraction prompt templates. Both can be
// overridden per book through configuration.
package prompts

import "github.com/lorecard/lorecard/internal/types"

// Prompt is one extraction prompt pair; the chunk text is appended to User.
type Prompt struct {
	System string
	User   string
}

const characterSystem = "你是一位专业的小说角色分析AI助手。"

const characterUser = `请从以下小说段落中提取出现的所有角色信息。

要求：
1. 只提取真正的角色名称，不要提取普通词汇、代词或描述性词语
2. 对每个角色进行深度分析，包括外貌特征、性格特点、说话习惯、人际关系等
3. 如果同一个角色有多个称呼方式，请合并为一个条目，并在 aliases 中列出其他称呼
4. 输出格式必须是标准的JSON数组

输出格式示例：
[
  {
    "name": "林三酒",
    "aliases": ["三酒"],
    "features": "黑发青年，身材修长，眼神锐利",
    "personality": "冷静理智，善于分析，有强烈的正义感",
    "quote": "语调平静，用词精准，常用反问句",
    "motivation": "查明真相",
    "relationships": ["季山青: 挚友"],
    "notes": "主角，拥有特殊能力"
  }
]

请直接输出JSON数组，不要包含任何其他内容或markdown格式。

小说段落：
`

const worldSystem = "你是一个世界观分析AI。"

const worldUser = `请从以下小说段落中，提取所有重要的世界观设定条目。

要求：
1. 找出所有涉及地点、组织、种族、关键物品、特殊能力、历史事件或独特概念的专有名词
2. 为每个条目确定一个最合适的类别，类别应该是单数名词，例如：地点、组织、种族、物品、能力、事件、概念
3. 用一两句话简洁地描述每个条目
4. 必须以一个JSON数组的格式输出，不要包含任何其他文字或markdown标记

输出格式示例：
[
  {
    "name": "红月之森",
    "type": "地点",
    "description": "一片永远被红色月光笼罩的森林，是精灵族的圣地。"
  },
  {
    "name": "暗影兄弟会",
    "type": "组织",
    "description": "一个活动在王国地下的秘密刺客公会。"
  }
]

小说段落：
`

// ForKind returns the default prompt for an entity kind.
func ForKind(kind types.EntityKind) Prompt {
	if kind == types.KindWorld {
		return Prompt{System: worldSystem, User: worldUser}
	}
	return Prompt{System: characterSystem, User: characterUser}
}
