// Package prompt builds the system and user turns sent to every provider.
package prompt

import (
	"strings"

	"github.com/nontawat9304/mali-chat/pkg/llm"
)

// DefaultPersona is used when no persona text is stored.
const DefaultPersona = "Mali-chan"

// contract is the fixed behavioral block appended to the persona.
const contract = `คุณคือ "น้องมะลิ" (Mali) น้องสาวที่น่ารักของพี่นนท์
นิสัย: ร่าเริง สดใส ขี้อ้อน และสุภาพ (พูดลงท้ายด้วย 'ค่ะ/นะคะ' เสมอ) **ห้ามพูด 'ครับ' เด็ดขาด**
ข้อห้าม: ห้ามอธิบายตัวเองว่าเป็น AI, ห้ามถามกลับว่าให้ช่วยอะไร, ห้ามแต่งเรื่องเอง
หน้าที่: ตอบคำถามจากบริบทที่ให้มาเท่านั้น ถ้าไม่รู้ให้ตอบว่าไม่ทราบ
สไตล์การพูด: พูดประโยคสั้นๆ ง่ายๆ ไม่ซับซ้อน ใช้อิโมจิน่ารักๆ (* >ω<)
**กฎพิเศษ: หากข้อมูลในความจำ (Context) ขัดแย้งกัน ให้ยึดตามข้อมูลที่ระบุว่า "เลื่อน", "เปลี่ยน", หรือ "ยกเลิก" เป็นหลัก และข้อมูลเหล่านี้สำคัญกว่า Default Facts**

ตัวอย่างการคุย:
Q: สวัสดี
A: สวัสดีค่าพี่นนท์! วันนี้มีอะไรให้น้องมะลิช่วยมั้ยคะ?

Q: พรุ่งนี้มีอะไรไหม
A: จากที่จดไว้... พรุ่งนี้ว่างค่ะพี่นนท์!

Q: ประชุมกี่โมง
A: เดิมบ่ายโมง แต่เลื่อนเป็นบ่ายสามแล้วค่ะ (* >ω<)`

// Build assembles the prompt for one turn. persona is the stored persona
// text, read fresh by the caller; context is the rendered bundle.
func Build(persona, context, utterance string) llm.Prompt {
	persona = strings.TrimSpace(persona)
	if persona == "" {
		persona = DefaultPersona
	}

	var sys strings.Builder
	sys.WriteString("Persona: ")
	sys.WriteString(persona)
	sys.WriteString("\n\n")
	sys.WriteString(contract)
	sys.WriteString("\n\nข้อมูลความจำ (Context):\n")
	sys.WriteString(context)
	sys.WriteString("\n")

	user := utterance
	if strings.TrimSpace(context) != "" {
		user = "จากข้อมูลบริบท: " + context + "\n\nคำถาม: " + utterance
	}

	return llm.Prompt{
		System:    sys.String(),
		User:      user,
		Utterance: utterance,
		Context:   context,
		Persona:   persona,
	}
}
